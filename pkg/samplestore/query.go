package samplestore

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// Key returns the storage key of obs: "nickname:unix_seconds".
//
// Two observations of one endpoint captured in the same second share a key,
// and the later write wins.
func Key(obs types.Observation) string {
	return obs.Nickname + ":" + strconv.FormatInt(obs.UnixSeconds(), 10)
}

// Filter narrows a query. The zero value matches everything.
type Filter struct {
	// RPC matches observations whose address contains it.
	RPC string

	// From and To are inclusive bounds on the capture time in unix seconds.
	From *int64
	To   *int64
}

// Match reports whether obs passes the filter.
func (f Filter) Match(obs types.Observation) bool {
	if f.RPC != "" && !strings.Contains(obs.RPCURL, f.RPC) {
		return false
	}
	if f.From != nil && obs.Timestamp < float64(*f.From) {
		return false
	}
	if f.To != nil && obs.Timestamp > float64(*f.To) {
		return false
	}
	return true
}

// Query returns every stored observation matching filter, newest first.
func Query(ctx context.Context, store Store, filter Filter) ([]types.Observation, error) {
	matching, _, err := Snapshot(ctx, store, filter)
	return matching, err
}

// Latest returns one observation per endpoint: the first met in a reverse
// key scan.
//
// Keys compare as strings, so this is the newest sample only while every
// stored timestamp has the same number of digits, which holds for unix
// seconds until 2286.
func Latest(ctx context.Context, store Store) ([]types.Observation, error) {
	_, latest, err := Snapshot(ctx, store, Filter{})
	return latest, err
}

// Snapshot performs one reverse scan and returns both the observations
// matching filter (newest first) and the latest observation per endpoint.
// The latest set ignores filter.
func Snapshot(ctx context.Context, store Store, filter Filter) (matching, latest []types.Observation, err error) {
	matching = []types.Observation{}
	latest = []types.Observation{}
	seen := make(map[string]struct{})

	err = store.Scan(ctx, ScanOptions{Reverse: true}, func(_ string, obs types.Observation) error {
		if _, ok := seen[obs.Nickname]; !ok {
			seen[obs.Nickname] = struct{}{}
			latest = append(latest, obs)
		}
		if filter.Match(obs) {
			matching = append(matching, obs)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Timestamp > matching[j].Timestamp
	})
	return matching, latest, nil
}
