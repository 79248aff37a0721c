package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const maxResponseSize = 16 << 20

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type accountsConfig struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment"`
}

type multipleAccountsResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []*AccountInfo `json:"value"`
}

// rpcTransport sends JSON-RPC calls through the failover endpoints and the shared limiter
type rpcTransport struct {
	endpoints     *FailoverClient
	httpClient    *http.Client
	limiter       *RateLimiter
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	nextID        atomic.Uint64
}

// call issues method with params and decodes the result into out.
// Transport failures are retried with exponential backoff on the next healthy
// endpoint; protocol errors are returned immediately.
func (t *rpcTransport) call(ctx context.Context, method string, params []any, out any) error {
	var lastErr error

	for attempt := range t.maxRetries + 1 {
		if attempt > 0 {
			backoff := t.retryInterval * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		ep, err := t.endpoints.currentEndpoint()
		if err != nil {
			lastErr = &TransportError{Endpoint: "*", Err: err}
			continue
		}

		// Every attempt, retries included, consumes a permit.
		if err := t.limiter.Acquire(ctx); err != nil {
			return err
		}

		var result json.RawMessage
		err = ep.execute(func() error {
			var postErr error
			result, postErr = t.post(ctx, ep, method, params)
			return postErr
		})
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(result, out); err != nil {
				return &ProtocolError{Code: 0, Message: fmt.Sprintf("malformed %s result: %v", method, err)}
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return err
		}

		lastErr = err
		t.endpoints.Rotate(ep.url)
		slog.Warn("RPC request failed", "method", method, "endpoint", ep.display, "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("failed after %d attempts: %w", t.maxRetries+1, lastErr)
}

// post performs a single JSON-RPC round trip bounded by the per-request timeout
func (t *rpcTransport) post(ctx context.Context, ep *endpointStatus, method string, params []any) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	id := t.nextID.Add(1)
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Endpoint: ep.display, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: ep.display, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Endpoint: ep.display, StatusCode: resp.StatusCode, Err: err}
	}

	slog.Debug("RPC response received",
		"method", method,
		"id", id,
		"endpoint", ep.display,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	var decoded rpcResponse
	jsonErr := json.Unmarshal(body, &decoded)

	// Some providers answer JSON-RPC errors with a non-2xx status; the error object wins.
	if jsonErr == nil && decoded.Error != nil {
		return nil, &ProtocolError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Endpoint: ep.display, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if jsonErr != nil {
		return nil, &TransportError{Endpoint: ep.display, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid JSON-RPC response: %w", jsonErr)}
	}
	if decoded.ID != id {
		return nil, &ProtocolError{Code: 0, Message: fmt.Sprintf("response id %d does not match request id %d", decoded.ID, id)}
	}

	return decoded.Result, nil
}

func (t *rpcTransport) release() {
	t.httpClient.CloseIdleConnections()
}
