package consensus

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

func obs(nickname string, slot uint64, blockhash string, latency uint64) types.Observation {
	return types.Observation{
		Timestamp: 1700000000,
		Slot:      slot,
		Blockhash: blockhash,
		LatencyMs: latency,
		Nickname:  nickname,
	}
}

func TestAnalyze_TwoEndpointExample(t *testing.T) {
	stats := Analyze([]types.Observation{
		obs("alpha", 100, "H1", 20),
		obs("beta", 100, "H1", 80),
	})

	assert.Equal(t, "H1", stats.ConsensusBlockhash)
	assert.Equal(t, 100.0, stats.ConsensusPercentage)
	assert.Equal(t, uint64(100), stats.ConsensusSlot)
	assert.Equal(t, "alpha", stats.FastestRPC)
	assert.Equal(t, uint64(20), stats.FastestLatency)
	assert.Equal(t, "beta", stats.SlowestRPC)
	assert.Equal(t, uint64(80), stats.SlowestLatency)
	assert.Equal(t, int64(0), stats.SlotDifference)
	assert.Equal(t, "No skew", stats.SlotSkew)
	assert.Equal(t, 50.0, stats.AverageLatency)
	assert.Equal(t, 2, stats.TotalRPCs)

	nicknames := func(entries []LeaderboardEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.Nickname)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, []string{"alpha", "beta"}, nicknames(stats.LatencyLeaderboard))
	assert.Equal(t, []string{"alpha", "beta"}, nicknames(stats.SlotLeaderboard))
}

func TestAnalyze_Empty(t *testing.T) {
	for _, in := range [][]types.Observation{nil, {}} {
		stats := Analyze(in)

		assert.Equal(t, NoData, stats.FastestRPC)
		assert.Equal(t, NoData, stats.SlowestRPC)
		assert.Equal(t, NoData, stats.ConsensusBlockhash)
		assert.Equal(t, NoData, stats.SlotSkew)
		assert.Zero(t, stats.ConsensusPercentage)
		assert.Zero(t, stats.TotalRPCs)
		assert.Zero(t, stats.AverageLatency)
		assert.NotNil(t, stats.LatencyLeaderboard)
		assert.NotNil(t, stats.SlotLeaderboard)
		assert.Empty(t, stats.LatencyLeaderboard)

		data, err := json.Marshal(stats)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"latency_leaderboard":[]`)
	}
}

func TestAnalyze_Skew(t *testing.T) {
	tests := []struct {
		name     string
		in       []types.Observation
		wantDiff int64
		wantSkew string
	}{
		{
			name:     "fastest ahead",
			in:       []types.Observation{obs("a", 105, "H", 10), obs("b", 100, "H", 90)},
			wantDiff: 5,
			wantSkew: "Fastest ahead by 5 slots",
		},
		{
			name:     "slowest ahead",
			in:       []types.Observation{obs("a", 100, "H", 10), obs("b", 103, "H", 90)},
			wantDiff: -3,
			wantSkew: "Slowest ahead by 3 slots",
		},
		{
			name:     "single endpoint",
			in:       []types.Observation{obs("a", 100, "H", 10)},
			wantDiff: 0,
			wantSkew: "No skew",
		},
		{
			name: "spread measured by latency rank, not slot range",
			in: []types.Observation{
				obs("fast", 100, "H", 5),
				obs("mid", 200, "H", 50),
				obs("slow", 100, "H", 500),
			},
			wantDiff: 0,
			wantSkew: "No skew",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := Analyze(tt.in)
			assert.Equal(t, tt.wantDiff, stats.SlotDifference)
			assert.Equal(t, tt.wantSkew, stats.SlotSkew)
		})
	}
}

func TestAnalyze_Majority(t *testing.T) {
	stats := Analyze([]types.Observation{
		obs("a", 100, "H1", 10),
		obs("b", 101, "H2", 20),
		obs("c", 101, "H2", 30),
		obs("d", 102, "H3", 40),
	})

	assert.Equal(t, "H2", stats.ConsensusBlockhash)
	assert.Equal(t, 50.0, stats.ConsensusPercentage)
	assert.Equal(t, uint64(101), stats.ConsensusSlot)
}

func TestAnalyze_DeterministicTieBreak(t *testing.T) {
	in := []types.Observation{
		obs("a", 300, "Hc", 10),
		obs("b", 200, "Ha", 20),
		obs("c", 100, "Hb", 30),
	}

	for i := 0; i < 20; i++ {
		shuffled := append([]types.Observation(nil), in...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		stats := Analyze(shuffled)
		assert.Equal(t, "Ha", stats.ConsensusBlockhash)
		assert.Equal(t, uint64(100), stats.ConsensusSlot)
	}
}

func TestAnalyze_FastestSlowestTiesFirstEncountered(t *testing.T) {
	stats := Analyze([]types.Observation{
		obs("first", 1, "H", 10),
		obs("second", 1, "H", 10),
	})

	assert.Equal(t, "first", stats.FastestRPC)
	assert.Equal(t, "first", stats.SlowestRPC)
}

func TestAnalyze_Leaderboards(t *testing.T) {
	in := []types.Observation{
		obs("a", 100, "H", 50),
		obs("b", 104, "H", 10),
		obs("c", 102, "H", 30),
		obs("d", 101, "H", 40),
		obs("e", 103, "H", 20),
		obs("f", 99, "H", 60),
	}

	stats := Analyze(in)

	require.Len(t, stats.LatencyLeaderboard, LeaderboardSize)
	assert.Equal(t, []string{"b", "e", "c", "d"}, names(stats.LatencyLeaderboard))
	assert.Equal(t, LeaderboardEntry{Nickname: "b", Value: 10, LatencyMs: 10, Timestamp: 1700000000}, stats.LatencyLeaderboard[0])

	require.Len(t, stats.SlotLeaderboard, LeaderboardSize)
	assert.Equal(t, []string{"b", "e", "c", "d"}, names(stats.SlotLeaderboard))
	assert.Equal(t, LeaderboardEntry{Nickname: "b", Value: 104, LatencyMs: 10, Timestamp: 1700000000}, stats.SlotLeaderboard[0])
}

func names(entries []LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Nickname
	}
	return out
}

// TestAnalyze_Properties checks the invariants over random inputs.
func TestAnalyze_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	hashes := []string{"H1", "H2", "H3", "H4"}

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(10)
		in := make([]types.Observation, n)
		distinct := make(map[string]int)
		for i := range in {
			h := hashes[rng.Intn(1+rng.Intn(len(hashes)))]
			distinct[h]++
			in[i] = obs(fmt.Sprintf("ep%d", i), uint64(100+rng.Intn(5)), h, uint64(rng.Intn(500)))
		}

		stats := Analyze(in)

		// Majority count is at least ceil(n / k).
		k := len(distinct)
		majority := distinct[stats.ConsensusBlockhash]
		assert.GreaterOrEqual(t, majority, (n+k-1)/k)
		assert.InDelta(t, 100*float64(majority)/float64(n), stats.ConsensusPercentage, 1e-9)

		wantLen := min(LeaderboardSize, n)
		require.Len(t, stats.LatencyLeaderboard, wantLen)
		require.Len(t, stats.SlotLeaderboard, wantLen)

		for i := 1; i < wantLen; i++ {
			assert.LessOrEqual(t, stats.LatencyLeaderboard[i-1].Value, stats.LatencyLeaderboard[i].Value)
			assert.GreaterOrEqual(t, stats.SlotLeaderboard[i-1].Value, stats.SlotLeaderboard[i].Value)
		}

		byName := make(map[string]types.Observation)
		for _, o := range in {
			byName[o.Nickname] = o
		}
		for _, e := range stats.LatencyLeaderboard {
			o := byName[e.Nickname]
			assert.Equal(t, o.LatencyMs, e.Value)
			assert.Equal(t, o.LatencyMs, e.LatencyMs)
			assert.Equal(t, o.Timestamp, e.Timestamp)
		}
		for _, e := range stats.SlotLeaderboard {
			o := byName[e.Nickname]
			assert.Equal(t, o.Slot, e.Value)
			assert.Equal(t, o.LatencyMs, e.LatencyMs)
		}
	}
}

func TestStats_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Analyze([]types.Observation{obs("a", 1, "H", 1)}))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, name := range []string{
		"fastest_rpc", "slowest_rpc", "fastest_latency", "slowest_latency",
		"consensus_blockhash", "consensus_slot", "consensus_percentage",
		"total_rpcs", "average_latency", "slot_difference", "slot_skew",
		"latency_leaderboard", "slot_leaderboard",
	} {
		assert.Contains(t, fields, name)
	}
}
