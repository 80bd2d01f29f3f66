// Package rpcfetch polls Solana-compatible JSON-RPC endpoints for their chain
// position and measures their responsiveness.
//
// # Architecture
//
// The package consists of three main components:
//
//   - Transports: the shared HTTP clients (HTTP/2 preferred, HTTP/1.1
//     legacy, and a minimal client with no connection reuse)
//   - Strategy: one protocol tier, fetching getSlot and getLatestBlockhash
//   - Client: drives the tiers in order, probes latency and keeps counters
//
// # Tiers
//
// A poll first issues both calls concurrently on the preferred client. If
// either fails, both are retried concurrently on the legacy client, and then
// sequentially on the minimal client. When every tier fails the resulting
// Observation is degraded (blockhash "Unavailable", slot zero unless it was
// obtained) and is expected to be dropped by the caller.
//
// # Latency
//
// Latency is measured separately from the chain state calls, with a single
// getHealth round trip on the preferred client, retried once on the legacy
// client. When both fail the Observation carries SentinelLatencyMs.
//
// # Usage
//
//	transports, err := rpcfetch.NewTransports(rpcfetch.DefaultTransportConfig())
//	if err != nil {
//	    return err
//	}
//	client, err := rpcfetch.NewClient(transports, rpcfetch.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	obs := client.Fetch(ctx, types.Endpoint{URL: url, Nickname: "alpha"})
//	if obs.Valid() {
//	    // persist
//	}
package rpcfetch
