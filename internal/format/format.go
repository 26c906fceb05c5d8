// Package format classifies persisted lore artifacts into known format
// generations and plans upgrade paths between them.
//
// Detection and path-planning are pure: callers read the data directory
// themselves (or via ReadArtifactState) and pass in an already-summarized
// ArtifactState. Nothing here touches storage.
package format

import (
	"fmt"

	"github.com/rcanale/lore/internal/ident"
)

// Generation names an ordered version of the on-disk record format.
type Generation string

const (
	// GenerationA is the legacy format: flat files addressed by fixed-width
	// sequential IDs, no derived summary field.
	GenerationA Generation = "legacy"
	// GenerationB is the intermediate format: flat files with global IDs
	// and derived summaries.
	GenerationB Generation = "flat-file"
	// GenerationC is the current format: records held in the relational
	// store with a full-text index. Flat files, when present, are
	// regenerated views rather than sources of truth.
	GenerationC Generation = "relational"
)

// order maps each generation to its position in the upgrade sequence.
var order = map[Generation]int{
	GenerationA: 0,
	GenerationB: 1,
	GenerationC: 2,
}

// Newest is the most recent known generation.
const Newest = GenerationC

// Known reports whether g names a generation this code understands.
func Known(g Generation) bool {
	_, ok := order[g]
	return ok
}

// ArtifactState is the caller-read summary of what exists on disk. Absent
// fields are themselves evidence: a record set with no summary field at all
// indicates Generation A.
type ArtifactState struct {
	HasDatabase     bool     // relational store file present
	HasFlatFiles    bool     // insights/tasks flat files present
	IDs             []string // record IDs sampled from flat files
	HasSummaryField bool     // any sampled record carries a summary
	InsightCount    int
	TaskCount       int
}

// Detection is the classification result for an artifact state.
type Detection struct {
	Generation  Generation
	Indicators  []string
	CanUpgrade  bool
	UpgradePath []Generation
}

// Detect classifies an artifact state into a generation. It is
// evidence-based and tolerates partial or missing fields; it never errors.
func Detect(state ArtifactState) Detection {
	var d Detection

	// Flat-file evidence of an older generation outranks database
	// presence: opening the relational store creates its file before any
	// migration has run, so an unmigrated store can have both.
	legacy := countLegacyIDs(state.IDs)

	switch {
	case state.HasFlatFiles && legacy > 0:
		d.Generation = GenerationA
		d.Indicators = append(d.Indicators,
			fmt.Sprintf("%d of %d sampled IDs use the legacy sequential pattern", legacy, len(state.IDs)))
		if !state.HasSummaryField {
			d.Indicators = append(d.Indicators, "no summary field present")
		}

	case state.HasFlatFiles && !state.HasSummaryField && len(state.IDs) > 0:
		// Global IDs but no summaries: records predate summary
		// derivation, so the A→B step still has work to do.
		d.Generation = GenerationA
		d.Indicators = append(d.Indicators, "global IDs present but summary field absent")

	case state.HasDatabase:
		d.Generation = GenerationC
		d.Indicators = append(d.Indicators, "relational store file present")
		if state.HasFlatFiles {
			d.Indicators = append(d.Indicators, "flat files present (regenerated views)")
		}

	case state.HasFlatFiles:
		d.Generation = GenerationB
		d.Indicators = append(d.Indicators, "flat files with global IDs and summaries")

	default:
		// Nothing on disk: a fresh install starts at the newest generation.
		d.Generation = GenerationC
		d.Indicators = append(d.Indicators, "no existing artifacts")
	}

	d.UpgradePath = UpgradePath(d.Generation, Newest)
	d.CanUpgrade = len(d.UpgradePath) > 0
	return d
}

// UpgradePath returns the ordered generations to traverse from one
// generation to another, excluding the starting point. An empty slice means
// nothing to do (already there, or the pair is unknown/backward).
func UpgradePath(from, to Generation) []Generation {
	fi, ok := order[from]
	if !ok {
		return nil
	}
	ti, ok := order[to]
	if !ok || ti <= fi {
		return nil
	}
	path := make([]Generation, 0, ti-fi)
	for _, g := range []Generation{GenerationA, GenerationB, GenerationC} {
		if order[g] > fi && order[g] <= ti {
			path = append(path, g)
		}
	}
	return path
}

// CanDirectUpgrade reports whether from→to is a single-step transition.
func CanDirectUpgrade(from, to Generation) bool {
	fi, okF := order[from]
	ti, okT := order[to]
	return okF && okT && ti-fi == 1
}

func countLegacyIDs(ids []string) int {
	n := 0
	for _, id := range ids {
		if ident.IsLegacyID(id) {
			n++
		}
	}
	return n
}
