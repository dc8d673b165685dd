package mcp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/embeddings"
	"github.com/xiy/memory-assistant/internal/memory"
	"github.com/xiy/memory-assistant/internal/store"
)

type captureSink struct {
	rows []store.MCPRequestLog
}

func (c *captureSink) InsertMCPRequestLog(_ context.Context, rec store.MCPRequestLog) error {
	c.rows = append(c.rows, rec)
	return nil
}

func newTestServer(t *testing.T, sink RequestLogSink) *Server {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "memory.sqlite"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Memory.MinSimilarity = 0.1
	svc, err := memory.NewService(st, embeddings.NewHash(64), decay.New(nil), cfg, logger)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return NewServer(svc, "test-assistant", logger, sink)
}

func serveLines(t *testing.T, srv *Server, lines ...string) []map[string]any {
	t.Helper()
	in := bytes.NewBufferString(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	var resps []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var resp map[string]any
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("json.Unmarshal(response) error = %v (line %q)", err, line)
		}
		resps = append(resps, resp)
	}
	return resps
}

func TestHandle_ToolsList(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, ok := srv.handle(context.Background(), request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/list",
	})
	if !ok {
		t.Fatal("expected response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	tools, ok := result["tools"].([]ToolDefinition)
	if !ok {
		t.Fatalf("unexpected tools type %T", result["tools"])
	}
	if len(tools) != len(toolHandlers) {
		t.Fatalf("expected %d tools, got %d", len(toolHandlers), len(tools))
	}
	for _, def := range tools {
		if _, ok := toolHandlers[def.Name]; !ok {
			t.Fatalf("tool %q has no handler", def.Name)
		}
	}
}

func TestHandle_NotificationsGetNoResponse(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	if _, ok := srv.handle(context.Background(), request{Method: "notifications/initialized"}); ok {
		t.Fatal("notifications must not be answered")
	}
	if _, ok := srv.handle(context.Background(), request{Method: "unknown/notification"}); ok {
		t.Fatal("unknown notifications must not be answered")
	}
	resp, ok := srv.handle(context.Background(), request{ID: json.RawMessage(`7`), Method: "nope"})
	if !ok || resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestReadWriteFramedMessage(t *testing.T) {
	t.Parallel()
	resp := response{JSONRPC: "2.0", ID: 1, Result: map[string]any{"ok": true}}
	var payloadBuf bytes.Buffer
	bw := bufio.NewWriter(&payloadBuf)
	if err := writeFramedMessage(bw, resp); err != nil {
		t.Fatalf("writeFramedMessage() error = %v", err)
	}
	if !bytes.HasPrefix(payloadBuf.Bytes(), []byte("Content-Length: ")) {
		t.Fatalf("expected framed header, got %q", payloadBuf.String())
	}
	br := bufio.NewReader(bytes.NewReader(payloadBuf.Bytes()))
	payload, mode, err := readMessage(br)
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if mode != wireModeFramed {
		t.Fatalf("expected framed mode, got %v", mode)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got["jsonrpc"] != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %v", got["jsonrpc"])
	}
}

func TestReadMessage_JSONLine(t *testing.T) {
	t.Parallel()
	br := bufio.NewReader(bytes.NewReader([]byte("\n\n{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n")))

	payload, mode, err := readMessage(br)
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if mode != wireModeJSONLine {
		t.Fatalf("expected JSON-line mode, got %v", mode)
	}
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("json.Unmarshal(payload) error = %v", err)
	}
	if req.Method != "ping" {
		t.Fatalf("expected method ping, got %q", req.Method)
	}
}

func TestServe_JSONLineInitialize(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resps := serveLines(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`)
	if len(resps) != 1 {
		t.Fatalf("expected one response, got %d", len(resps))
	}
	result := resps[0]["result"].(map[string]any)
	if result["protocolVersion"] != "2025-03-26" {
		t.Fatalf("expected echoed protocol version, got %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != "test-assistant" {
		t.Fatalf("expected configured server name, got %v", info["name"])
	}
}

func TestServe_IngestThenSearch(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"memory_ingest","arguments":{"kind":"episodic","content":"Mustafa kahve seviyor","confidence":0.9}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"memory_search","arguments":{"query":"Mustafa kahve seviyor","k":1}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"truth_record","arguments":{"topic":"drink","content":"coffee"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"truth_history","arguments":{"topic":"drink"}}}`,
	)
	if len(resps) != 4 {
		t.Fatalf("expected four responses, got %d", len(resps))
	}
	for i, r := range resps {
		result := r["result"].(map[string]any)
		if result["isError"] != false {
			t.Fatalf("response %d failed: %v", i, result["content"])
		}
	}

	search := resps[1]["result"].(map[string]any)["structuredContent"].(map[string]any)
	results := search["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected one search result, got %d", len(results))
	}
	rec := results[0].(map[string]any)["record"].(map[string]any)
	if rec["content"] != "Mustafa kahve seviyor" {
		t.Fatalf("unexpected search hit %v", rec)
	}
	if _, ok := rec["embedding"]; ok {
		t.Fatal("embeddings must not be returned to clients")
	}

	hist := resps[3]["result"].(map[string]any)["structuredContent"].(map[string]any)
	if versions := hist["versions"].([]any); len(versions) != 1 {
		t.Fatalf("expected one truth version, got %d", len(versions))
	}
}

func TestServe_LogsRequestEvents(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	srv := newTestServer(t, sink)

	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"memory_search","arguments":{"query":""}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`not json`,
	)
	if len(resps) != 3 {
		t.Fatalf("expected three responses, got %d", len(resps))
	}
	if len(sink.rows) != 3 {
		t.Fatalf("expected 3 request log rows, got %d", len(sink.rows))
	}

	got := sink.rows[0]
	if got.Method != "tools/call" || got.ToolName != "memory_search" {
		t.Fatalf("unexpected row %+v", got)
	}
	if got.Success || got.ErrorText == "" {
		t.Fatalf("expected failed search with error text, got %+v", got)
	}
	if got.RequestID == "" || got.RequestID == sink.rows[1].RequestID {
		t.Fatalf("expected distinct request ids, got %q and %q", got.RequestID, sink.rows[1].RequestID)
	}
	if !sink.rows[1].Success {
		t.Fatalf("ping must succeed, got %+v", sink.rows[1])
	}
	if sink.rows[2].Method != "parse_error" || sink.rows[2].Success {
		t.Fatalf("unexpected parse error row %+v", sink.rows[2])
	}
}

func TestServe_UnknownToolIsToolError(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	resps := serveLines(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"memory_forget"}}`)
	result := resps[0]["result"].(map[string]any)
	if result["isError"] != true {
		t.Fatalf("expected tool error, got %v", result)
	}
}
