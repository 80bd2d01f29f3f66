package dashboard

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/consensus"
	"github.com/fortiblox/X1-Pulse/pkg/rpcfetch"
	"github.com/fortiblox/X1-Pulse/pkg/samplestore"
)

// queryTimeout bounds the store scan behind one /api/metrics request.
const queryTimeout = 10 * time.Second

// ProtocolStatsResponse is the response for /api/protocol-stats.
type ProtocolStatsResponse struct {
	rpcfetch.TierStats
	PreferredRatio float64 `json:"preferred_ratio"`
}

// handleAPIMetrics handles GET /api/metrics?rpc=&from=&to=.
//
// The body is the JSON tuple [observations, stats]. Observations match the
// filter and are newest first. Stats are computed from the newest sample of
// every endpoint and ignore the filter.
func (d *Dashboard) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !d.limiter.Allow() {
		writeError(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	filter := parseFilter(r)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	matching, latest, err := samplestore.Snapshot(ctx, d.store, filter)
	if err != nil {
		d.log.Error("failed to query observations", "error", err)
		writeError(w, "Failed to query observations", http.StatusInternalServerError)
		return
	}

	observations := make([]types.Observation, len(matching))
	for i, obs := range matching {
		observations[i] = obs.Public()
	}

	body, err := json.Marshal([]interface{}{observations, consensus.Analyze(latest)})
	if err != nil {
		d.log.Error("failed to encode metrics response", "error", err)
		writeError(w, "Internal error", http.StatusInternalServerError)
		return
	}

	etag := computeETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleProtocolStats handles GET /api/protocol-stats.
func (d *Dashboard) handleProtocolStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var stats rpcfetch.TierStats
	if d.tiers != nil {
		stats = d.tiers.Stats()
	}

	writeJSON(w, ProtocolStatsResponse{
		TierStats:      stats,
		PreferredRatio: stats.PreferredRatio(),
	})
}

// parseFilter reads the rpc, from and to query parameters. Bounds that are
// not integers are ignored.
func parseFilter(r *http.Request) samplestore.Filter {
	q := r.URL.Query()
	return samplestore.Filter{
		RPC:  q.Get("rpc"),
		From: parseUnix(q.Get("from")),
		To:   parseUnix(q.Get("to")),
	}
}

func parseUnix(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// computeETag returns a strong entity tag over the first 16 bytes of the
// body's BLAKE3 digest.
func computeETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatches reports whether an If-None-Match header value matches etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
