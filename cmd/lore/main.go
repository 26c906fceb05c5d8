// Lore: persistent knowledge and task store, served over MCP.
//
// Lore gives AI coding tools a durable memory: insights and tasks are
// captured as they come up, retrieved progressively (scan, then expand),
// and carried between repositories via export/import bundles.
//
// Usage:
//
//	lore serve     # Start MCP server (stdio transport)
//	lore version   # Print the version
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	loreserver "github.com/rcanale/lore/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("lore v%s\n", loreserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := loreserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Run cleanup on interrupt too; ServeStdio returns when stdin closes,
	// but a signal can arrive first.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `lore %s — persistent knowledge and task store (MCP)

Usage:
  lore serve      Start the MCP server on stdio
  lore version    Print the version
  lore help       Show this help

Configuration:
  LORE_DATA_DIR   Override the data directory (default: ~/.lore)
`, loreserver.Version)
}
