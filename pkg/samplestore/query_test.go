package samplestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

func int64p(v int64) *int64 { return &v }

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, obs := range []types.Observation{
		observation("alpha", 1000, 100),
		observation("alpha", 1010, 101),
		observation("beta", 1005, 99),
		observation("beta", 1020, 103),
		observation("gamma", 990, 98),
	} {
		require.NoError(t, s.Put(ctx, obs))
	}
}

func timestamps(obs []types.Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Timestamp
	}
	return out
}

func TestKey(t *testing.T) {
	assert.Equal(t, "alpha:1700000000", Key(types.Observation{Nickname: "alpha", Timestamp: 1700000000.999}))
	assert.Equal(t, "a:b:5", Key(types.Observation{Nickname: "a:b", Timestamp: 5}))
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []float64
	}{
		{
			name: "no filter, newest first",
			want: []float64{1020, 1010, 1005, 1000, 990},
		},
		{
			name:   "rpc substring",
			filter: Filter{RPC: "beta.example"},
			want:   []float64{1020, 1005},
		},
		{
			name:   "inclusive bounds",
			filter: Filter{From: int64p(1000), To: int64p(1010)},
			want:   []float64{1010, 1005, 1000},
		},
		{
			name:   "from only",
			filter: Filter{From: int64p(1006)},
			want:   []float64{1020, 1010},
		},
		{
			name:   "combined",
			filter: Filter{RPC: "alpha", To: int64p(1005)},
			want:   []float64{1000},
		},
		{
			name:   "no match",
			filter: Filter{RPC: "delta"},
			want:   []float64{},
		},
	}

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			seed(t, s)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := Query(context.Background(), s, tt.filter)
					require.NoError(t, err)
					assert.Equal(t, tt.want, timestamps(got))
				})
			}
		})
	}
}

func TestLatest(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			seed(t, s)

			latest, err := Latest(context.Background(), s)
			require.NoError(t, err)

			bySlot := make(map[string]uint64)
			for _, o := range latest {
				bySlot[o.Nickname] = o.Slot
			}
			assert.Equal(t, map[string]uint64{"alpha": 101, "beta": 103, "gamma": 98}, bySlot)
		})
	}
}

func TestSnapshot_LatestIgnoresFilter(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			seed(t, s)

			matching, latest, err := Snapshot(context.Background(), s, Filter{RPC: "gamma"})
			require.NoError(t, err)

			assert.Len(t, matching, 1)
			assert.Len(t, latest, 3)
		})
	}
}

func TestSnapshot_Empty(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			matching, latest, err := Snapshot(context.Background(), open(t), Filter{})
			require.NoError(t, err)
			assert.NotNil(t, matching)
			assert.NotNil(t, latest)
			assert.Empty(t, matching)
			assert.Empty(t, latest)
		})
	}
}
