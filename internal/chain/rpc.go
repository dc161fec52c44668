package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// rpcRequest is a JSON-RPC 2.0 call envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// RPCClient issues JSON-RPC 2.0 calls against the ledger node with a bounded
// per-call timeout. A null result is reported as errNullResult so callers can
// translate it into a normal not-found; everything else that goes wrong is a
// transient upstream failure.
type RPCClient struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewRPCClient builds a client for the given endpoint. timeout bounds each
// individual call and defaults to eight seconds.
func NewRPCClient(url string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &RPCClient{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

var errNullResult = dErrors.New(dErrors.CodeNotFound, "ledger returned no result")

// Call performs one JSON-RPC round trip and decodes the result into out.
func (c *RPCClient) Call(ctx context.Context, method string, params any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "ledger rpc unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dErrors.Newf(dErrors.CodeTransient, "ledger rpc returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "decode ledger rpc response")
	}
	if rpcResp.Error != nil {
		return dErrors.Newf(dErrors.CodeTransient, "ledger rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return errNullResult
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "unmarshal ledger rpc result")
	}
	return nil
}
