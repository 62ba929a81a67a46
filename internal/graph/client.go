// Package graph implements the GraphBridge: a one-way push of a space's
// bank files into an external knowledge-graph service via that service's
// own tool protocol, plus a minimal client for calling those tools.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrRemoteNotFound is returned by CallTool when the remote reports that
// the target resource (typically a document) does not exist. Callers
// that issue a delete-before-write like Push's document_delete step
// treat this as a no-op rather than a failure.
var ErrRemoteNotFound = errors.New("remote resource not found")

func looksLikeNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "not_found") || strings.Contains(lower, "no such")
}

// RemoteToolClient calls named tools on an external MCP-style service
// over JSON-RPC, the same envelope shape the original's SSE client
// exchanged after its handshake. The full SSE handshake is not needed
// here because every call this bridge makes is a single request/response
// tool invocation with no streamed intermediate progress.
type RemoteToolClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRemoteToolClient builds a client against baseURL, authenticating
// with token.
func NewRemoteToolClient(baseURL, token string) *RemoteToolClient {
	return &RemoteToolClient{baseURL: baseURL, token: token, http: &http.Client{Timeout: 30 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type rpcResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CallTool invokes name on the remote with the given arguments and
// parses the reply's content[0].text as JSON into a generic map. On
// parse failure it falls back to {"status":"ok","raw":<text>}, matching
// the original client's degrade-gracefully behavior.
func (c *RemoteToolClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote tool %s: %w", name, err)
	}
	defer resp.Body.Close()

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding remote response for %s: %w", name, err)
	}
	if parsed.Error != nil {
		if looksLikeNotFound(parsed.Error.Message) {
			return nil, ErrRemoteNotFound
		}
		return nil, fmt.Errorf("remote tool %s failed: %s", name, parsed.Error.Message)
	}
	if len(parsed.Result.Content) == 0 {
		return map[string]interface{}{"status": "ok"}, nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(parsed.Result.Content[0].Text), &result); err != nil {
		if parsed.Result.IsError && looksLikeNotFound(parsed.Result.Content[0].Text) {
			return nil, ErrRemoteNotFound
		}
		return map[string]interface{}{"status": "ok", "raw": parsed.Result.Content[0].Text}, nil
	}
	if status, _ := result["status"].(string); status == "not_found" {
		return nil, ErrRemoteNotFound
	}
	if parsed.Result.IsError {
		msg, _ := result["message"].(string)
		if msg == "" {
			msg = parsed.Result.Content[0].Text
		}
		return nil, fmt.Errorf("remote tool %s failed: %s", name, msg)
	}
	return result, nil
}
