// Package consensus computes cross-endpoint agreement and leaderboards from
// the latest observation of each endpoint.
package consensus

import (
	"fmt"
	"sort"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// LeaderboardSize is the number of entries kept in each leaderboard.
const LeaderboardSize = 4

// NoData is reported in the text fields when there are no observations.
const NoData = "No data"

// LeaderboardEntry is one ranked endpoint. Value is the latency in the
// latency leaderboard and the slot in the slot leaderboard.
type LeaderboardEntry struct {
	Nickname  string  `json:"nickname"`
	Value     uint64  `json:"value"`
	LatencyMs uint64  `json:"latency_ms"`
	Timestamp float64 `json:"timestamp"`
}

// Stats is the consensus summary over one observation per endpoint.
type Stats struct {
	FastestRPC          string             `json:"fastest_rpc"`
	SlowestRPC          string             `json:"slowest_rpc"`
	FastestLatency      uint64             `json:"fastest_latency"`
	SlowestLatency      uint64             `json:"slowest_latency"`
	ConsensusBlockhash  string             `json:"consensus_blockhash"`
	ConsensusSlot       uint64             `json:"consensus_slot"`
	ConsensusPercentage float64            `json:"consensus_percentage"`
	TotalRPCs           int                `json:"total_rpcs"`
	AverageLatency      float64            `json:"average_latency"`
	SlotDifference      int64              `json:"slot_difference"`
	SlotSkew            string             `json:"slot_skew"`
	LatencyLeaderboard  []LeaderboardEntry `json:"latency_leaderboard"`
	SlotLeaderboard     []LeaderboardEntry `json:"slot_leaderboard"`
}

// Empty returns the result for an empty observation set.
func Empty() Stats {
	return Stats{
		FastestRPC:         NoData,
		SlowestRPC:         NoData,
		ConsensusBlockhash: NoData,
		SlotSkew:           NoData,
		LatencyLeaderboard: []LeaderboardEntry{},
		SlotLeaderboard:    []LeaderboardEntry{},
	}
}

// Analyze computes Stats over observations, expected to hold one entry per
// endpoint. It never fails.
//
// Majority ties are broken by the lexicographically smallest blockhash and
// the smallest slot, so the result does not depend on input order except for
// fastest and slowest, where the first encountered wins.
func Analyze(observations []types.Observation) Stats {
	if len(observations) == 0 {
		return Empty()
	}
	n := len(observations)

	blockhash, blockhashCount := majorityBlockhash(observations)
	slot := majoritySlot(observations)

	fastest, slowest := observations[0], observations[0]
	var totalLatency float64
	for _, o := range observations {
		if o.LatencyMs < fastest.LatencyMs {
			fastest = o
		}
		if o.LatencyMs > slowest.LatencyMs {
			slowest = o
		}
		totalLatency += float64(o.LatencyMs)
	}

	diff := int64(fastest.Slot) - int64(slowest.Slot)

	return Stats{
		FastestRPC:          fastest.Nickname,
		SlowestRPC:          slowest.Nickname,
		FastestLatency:      fastest.LatencyMs,
		SlowestLatency:      slowest.LatencyMs,
		ConsensusBlockhash:  blockhash,
		ConsensusSlot:       slot,
		ConsensusPercentage: float64(blockhashCount) / float64(n) * 100,
		TotalRPCs:           n,
		AverageLatency:      totalLatency / float64(n),
		SlotDifference:      diff,
		SlotSkew:            Skew(diff),
		LatencyLeaderboard:  LatencyLeaderboard(observations),
		SlotLeaderboard:     SlotLeaderboard(observations),
	}
}

// Skew describes a fastest-minus-slowest slot difference.
func Skew(diff int64) string {
	switch {
	case diff == 0:
		return "No skew"
	case diff > 0:
		return fmt.Sprintf("Fastest ahead by %d slots", diff)
	default:
		return fmt.Sprintf("Slowest ahead by %d slots", -diff)
	}
}

func majorityBlockhash(observations []types.Observation) (string, int) {
	counts := make(map[string]int)
	for _, o := range observations {
		counts[o.Blockhash]++
	}

	var best string
	bestCount := 0
	for hash, c := range counts {
		if c > bestCount || (c == bestCount && hash < best) {
			best, bestCount = hash, c
		}
	}
	return best, bestCount
}

func majoritySlot(observations []types.Observation) uint64 {
	counts := make(map[uint64]int)
	for _, o := range observations {
		counts[o.Slot]++
	}

	var best uint64
	bestCount := 0
	for slot, c := range counts {
		if c > bestCount || (c == bestCount && slot < best) {
			best, bestCount = slot, c
		}
	}
	return best
}

// LatencyLeaderboard ranks observations by ascending latency.
func LatencyLeaderboard(observations []types.Observation) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(observations))
	for _, o := range observations {
		entries = append(entries, LeaderboardEntry{
			Nickname:  o.Nickname,
			Value:     o.LatencyMs,
			LatencyMs: o.LatencyMs,
			Timestamp: o.Timestamp,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value < entries[j].Value
	})
	return truncate(entries)
}

// SlotLeaderboard ranks observations by descending slot.
func SlotLeaderboard(observations []types.Observation) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(observations))
	for _, o := range observations {
		entries = append(entries, LeaderboardEntry{
			Nickname:  o.Nickname,
			Value:     o.Slot,
			LatencyMs: o.LatencyMs,
			Timestamp: o.Timestamp,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})
	return truncate(entries)
}

func truncate(entries []LeaderboardEntry) []LeaderboardEntry {
	if len(entries) > LeaderboardSize {
		return entries[:LeaderboardSize]
	}
	return entries
}
