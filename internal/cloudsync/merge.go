package cloudsync

import (
	"sort"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
)

const defaultMaxEntries = 500

// Resolution selects how local and remote state are reconciled when a
// session starts.
type Resolution string

const (
	// ResolutionRemoteFirst lets an existing remote document overwrite local state.
	ResolutionRemoteFirst Resolution = "remote_first"
	// ResolutionMerge unions local and remote state.
	ResolutionMerge Resolution = "merge"
)

// Outcome reports which side a session start adopted.
type Outcome string

const (
	OutcomeLocal  Outcome = "local"
	OutcomeRemote Outcome = "remote"
	OutcomeMerged Outcome = "merged"
)

func resolve(policy Resolution, local, remote experiment.State, remoteExists bool, maxEntries int) (experiment.State, Outcome) {
	if !remoteExists {
		return local, OutcomeLocal
	}
	if policy == ResolutionMerge {
		return mergeStates(local, remote, maxEntries), OutcomeMerged
	}
	return remote, OutcomeRemote
}

// mergeStates unions two states. Local wins on conflicting chat entries.
// Counters take the larger side and the search flag is OR-ed.
func mergeStates(local, remote experiment.State, maxEntries int) experiment.State {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	merged := experiment.DefaultState()
	for id, visited := range remote.MetricsVisited {
		merged.MetricsVisited[id] = visited
	}
	for id, visited := range local.MetricsVisited {
		merged.MetricsVisited[id] = visited
	}

	index := make(map[string]int)
	var entries []experiment.ChatEntry
	for _, group := range [][]experiment.ChatEntry{remote.ChatEntries, local.ChatEntries} {
		for _, e := range group {
			key := e.Question + "__" + e.CreatedAt
			if i, ok := index[key]; ok {
				entries[i] = e
				continue
			}
			index[key] = len(entries)
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entryTime(entries[i]).Before(entryTime(entries[j]))
	})
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	if entries != nil {
		merged.ChatEntries = entries
	}

	merged.FinalFeedback.Sent = local.FinalFeedback.Sent || remote.FinalFeedback.Sent
	merged.FinalFeedback.SentAt = later(remote.FinalFeedback.SentAt, local.FinalFeedback.SentAt)

	// Progress only moves forward. The last search fields follow local.
	merged.Meta = local.Meta
	merged.Meta.ChatCompletedCount = max(local.Meta.ChatCompletedCount, remote.Meta.ChatCompletedCount)
	merged.Meta.MetricSearchUsedCount = max(local.Meta.MetricSearchUsedCount, remote.Meta.MetricSearchUsedCount)
	merged.Meta.MetricSearchClickCount = max(local.Meta.MetricSearchClickCount, remote.Meta.MetricSearchClickCount)
	merged.Meta.MetricSearchTaskDone = local.Meta.MetricSearchTaskDone || remote.Meta.MetricSearchTaskDone
	merged.Meta.UpdatedAt = later(local.Meta.UpdatedAt, remote.Meta.UpdatedAt)

	return merged
}

func entryTime(e experiment.ChatEntry) time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// later returns the later of two timestamps. a wins a tie.
func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
