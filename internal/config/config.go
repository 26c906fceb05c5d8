// Package config persists per-repository settings: the repository's
// display name, where record data lives, and retrieval limits. Settings
// live in a single config.json inside the data directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rcanale/lore/internal/ident"
)

const (
	// DataDirName is the default data directory under the user's home.
	DataDirName = ".lore"
	// ConfigFile is the settings filename inside the data directory.
	ConfigFile = "config.json"
)

// Config holds per-repository settings. RepoHash is derived from RepoPath
// and namespaces migrated IDs and bundle provenance; it is stored so the
// namespace survives a repository move.
type Config struct {
	RepoName         string `json:"repo_name"`
	RepoPath         string `json:"repo_path"`
	RepoHash         string `json:"repo_hash"`
	DataDir          string `json:"data_dir"`
	MaxContentLength int    `json:"max_content_length"`
	MaxSearchResults int    `json:"max_search_results"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// NewConfig creates a Config with defaults for the given repository.
func NewConfig(repoName, repoPath string) *Config {
	now := time.Now().UTC().Format(time.RFC3339)
	home, _ := os.UserHomeDir()
	return &Config{
		RepoName:         repoName,
		RepoPath:         repoPath,
		RepoHash:         ident.RepoHash(repoPath),
		DataDir:          filepath.Join(home, DataDirName),
		MaxContentLength: 4000,
		MaxSearchResults: 20,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Path returns the absolute path to a data directory's config.json.
func Path(dataDir string) string {
	return filepath.Join(dataDir, ConfigFile)
}

// Store defines the persistence interface for settings. Abstracted for
// testability.
type Store interface {
	Load(dataDir string) (*Config, error)
	Save(dataDir string, cfg *Config) error
}

// FileStore implements Store using the local filesystem.
type FileStore struct{}

// NewFileStore creates a filesystem-backed config store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Load reads config.json from the data directory. A missing file returns
// (nil, nil): absence means first run, not failure.
func (fs *FileStore) Load(dataDir string) (*Config, error) {
	data, err := os.ReadFile(Path(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", ConfigFile, err)
	}
	return &cfg, nil
}

// Save writes config.json, creating the data directory if needed. The
// write is atomic via a temp file so a crash never leaves a torn config.
func (fs *FileStore) Save(dataDir string, cfg *Config) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("config: create data dir: %w", err)
	}
	cfg.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	path := Path(dataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// LoadOrInit loads the config, creating and persisting a default one on
// first run.
func LoadOrInit(fs Store, dataDir, repoName, repoPath string) (*Config, error) {
	cfg, err := fs.Load(dataDir)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	cfg = NewConfig(repoName, repoPath)
	cfg.DataDir = dataDir
	if err := fs.Save(dataDir, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
