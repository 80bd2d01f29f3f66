package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockhash = "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirmd"

func TestParseBlockhash(t *testing.T) {
	h, err := ParseBlockhash(testBlockhash)
	require.NoError(t, err)
	assert.Equal(t, testBlockhash, h.String())
	assert.False(t, h.IsZero())

	_, err = ParseBlockhash("")
	assert.ErrorIs(t, err, ErrEmptyBlockhash)

	_, err = ParseBlockhash("abc")
	assert.ErrorIs(t, err, ErrBlockhashLength)

	_, err = ParseBlockhash(BlockhashUnavailable)
	assert.Error(t, err)

	_, err = ParseBlockhash("0OIl")
	assert.Error(t, err, "not in the base58 alphabet")

	assert.True(t, Blockhash{}.IsZero())
}

func TestNewObservation(t *testing.T) {
	ep := Endpoint{URL: "https://alpha.example.com", Nickname: "alpha"}
	at := time.Unix(1700000000, 500_000_000)

	obs := NewObservation(ep, at)

	assert.InDelta(t, 1700000000.5, obs.Timestamp, 1e-6)
	assert.Equal(t, BlockhashUnavailable, obs.Blockhash)
	assert.Equal(t, "alpha", obs.Nickname)
	assert.Equal(t, ep.URL, obs.RPCURL)
	assert.Equal(t, int64(1700000000), obs.UnixSeconds())
	assert.WithinDuration(t, at, obs.CapturedAt(), time.Millisecond)
	assert.False(t, obs.Valid())
}

func TestObservation_Valid(t *testing.T) {
	base := Observation{Timestamp: 1, Slot: 10, Blockhash: testBlockhash, Nickname: "a"}

	tests := []struct {
		name   string
		modify func(*Observation)
		want   bool
	}{
		{name: "complete", modify: func(*Observation) {}, want: true},
		{name: "zero slot", modify: func(o *Observation) { o.Slot = 0 }},
		{name: "unavailable blockhash", modify: func(o *Observation) { o.Blockhash = BlockhashUnavailable }},
		{name: "empty blockhash", modify: func(o *Observation) { o.Blockhash = "" }},
		{name: "sentinel latency is still valid", modify: func(o *Observation) { o.LatencyMs = 9999 }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := base
			tt.modify(&obs)
			assert.Equal(t, tt.want, obs.Valid())
		})
	}
}

func TestObservation_Public(t *testing.T) {
	obs := Observation{Slot: 1, RPCURL: "https://secret.example.com", Nickname: "a"}

	pub := obs.Public()

	assert.Empty(t, pub.RPCURL)
	assert.Equal(t, "https://secret.example.com", obs.RPCURL, "original untouched")
	assert.Equal(t, obs.Nickname, pub.Nickname)
}
