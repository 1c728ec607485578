package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// httpRPCTransport is a minimal JSON-RPC 2.0 over HTTP client satisfying
// ipc/parent.RPCTransport. The parent RPC wire client itself is out of
// scope (spec §1) — this is the thin, generic envelope the composition
// root needs to point ipc/parent.RPCProxy at a real Filecoin-style JSON-RPC
// endpoint, using the same request/response shape ethrpc/server.go already
// speaks on the way in.
type httpRPCTransport struct {
	url    string
	client *http.Client
	nextID int64
}

func newHTTPRPCTransport(url string, timeout time.Duration) *httpRPCTransport {
	return &httpRPCTransport{url: url, client: &http.Client{Timeout: timeout}}
}

type rpcRequest struct {
	Version string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *httpRPCTransport) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	id := atomic.AddInt64(&t.nextID, 1)
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{Version: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rpcclient: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpcclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpcclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rpcclient: read response: %w", err)
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fmt.Errorf("rpcclient: decode response: %w", err)
	}
	if rr.Error != nil {
		return fmt.Errorf("rpcclient: %s: %s", method, rr.Error.Message)
	}
	if result == nil || len(rr.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rr.Result, result)
}
