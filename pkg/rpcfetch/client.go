package rpcfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// rpcClient issues JSON-RPC calls over one HTTP client.
type rpcClient struct {
	httpClient *http.Client
	commitment string
}

func newRPCClient(httpClient *http.Client, commitment string) *rpcClient {
	return &rpcClient{httpClient: httpClient, commitment: commitment}
}

// call posts a JSON-RPC request to url and decodes the result into result.
func (c *rpcClient) call(ctx context.Context, url, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &ProtocolError{Method: method, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return &DecodeError{Method: method, Err: err}
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return &DecodeError{Method: method, Err: ErrNoResult}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &DecodeError{Method: method, Err: fmt.Errorf("unmarshal result: %w", err)}
		}
	}

	return nil
}

func (c *rpcClient) commitmentParams() []interface{} {
	if c.commitment == "" {
		return nil
	}
	return []interface{}{
		map[string]interface{}{
			"commitment": c.commitment,
		},
	}
}

// GetSlot fetches the current slot and the time the call took.
func (c *rpcClient) GetSlot(ctx context.Context, url string) (uint64, time.Duration, error) {
	start := time.Now()

	var slot uint64
	if err := c.call(ctx, url, "getSlot", c.commitmentParams(), &slot); err != nil {
		return 0, time.Since(start), err
	}
	return slot, time.Since(start), nil
}

// blockhashResult is the result of getLatestBlockhash.
type blockhashResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// GetLatestBlockhash fetches the latest blockhash and the time the call took.
// The blockhash is validated as a base58 encoded 32-byte hash.
func (c *rpcClient) GetLatestBlockhash(ctx context.Context, url string) (string, time.Duration, error) {
	const method = "getLatestBlockhash"
	start := time.Now()

	var result blockhashResult
	if err := c.call(ctx, url, method, c.commitmentParams(), &result); err != nil {
		return "", time.Since(start), err
	}
	elapsed := time.Since(start)

	if _, err := types.ParseBlockhash(result.Value.Blockhash); err != nil {
		return "", elapsed, &DecodeError{Method: method, Err: err}
	}
	return result.Value.Blockhash, elapsed, nil
}
