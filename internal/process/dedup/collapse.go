package dedup

import (
	"github.com/rs/zerolog"
)

// Log key constants for candidate collapsing.
const (
	logKeySkippedID   = "skipped_id"
	logKeyDuplicateOf = "duplicate_of"
)

// Grouped is implemented by anything carrying a cluster assignment.
// db.Signal satisfies it.
type Grouped interface {
	GetID() string
	GetClusterID() string
}

// CollapseByCluster keeps the first item seen per cluster and drops the
// rest. Inputs ordered best-first therefore keep their top-scoring member.
// Items without a cluster assignment are kept as-is.
//
// Briefing selection uses this: two members of the same story cluster can
// both clear the signal threshold, and concurrently formed singleton
// clusters are merged later, so the candidate list needs its own collapse.
func CollapseByCluster[T Grouped](items []T, logger *zerolog.Logger) []T {
	if len(items) == 0 {
		return items
	}

	result := make([]T, 0, len(items))
	seen := make(map[string]string, len(items))

	for _, item := range items {
		clusterID := item.GetClusterID()
		if clusterID == "" {
			result = append(result, item)

			continue
		}

		if keptID, ok := seen[clusterID]; ok {
			if logger != nil {
				logger.Debug().
					Str(logKeySkippedID, item.GetID()).
					Str(logKeyDuplicateOf, keptID).
					Msg("Collapsing same-cluster candidate")
			}

			continue
		}

		seen[clusterID] = item.GetID()

		result = append(result, item)
	}

	return result
}
