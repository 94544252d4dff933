package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/termgate/termgate/internal/hostinfo"
)

func testServer() *Server {
	gw := New(hostinfo.Collect(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewServer(gw, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("result has no content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("result content is not text: %#v", result.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("result payload is not JSON: %v\n%s", err, text.Text)
	}
	return payload
}

func TestHandleExecuteCommandSuccessPayload(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses unix echo")
	}
	s := testServer()

	result, err := s.handleExecuteCommand(context.Background(), callRequest(map[string]any{
		"command": "echo hi",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	payload := decodeResult(t, result)
	if payload["status"] != "success" {
		t.Fatalf("status = %v, want success", payload["status"])
	}
	if payload["exit_code"] != float64(0) {
		t.Fatalf("exit_code = %v, want 0", payload["exit_code"])
	}
}

func TestHandleExecuteCommandErrorIsTagged(t *testing.T) {
	s := testServer()

	result, err := s.handleExecuteCommand(context.Background(), callRequest(map[string]any{
		"command": "no-such-binary-exists-here",
	}))
	if err != nil {
		t.Fatalf("operational failures must not become handler errors: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected an error-flagged result")
	}
	payload := decodeResult(t, result)
	if payload["status"] != "error" {
		t.Fatalf("status = %v, want error", payload["status"])
	}
	if payload["error"] == "" {
		t.Fatalf("error payload must carry a message")
	}
}

func TestHandleDownloadFileMissing(t *testing.T) {
	s := testServer()

	result, err := s.handleDownloadFile(context.Background(), callRequest(map[string]any{
		"file_path": filepath.Join(t.TempDir(), "ghost"),
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected an error-flagged result")
	}
}

func TestHandleSystemInfo(t *testing.T) {
	s := testServer()

	result, err := s.handleSystemInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	payload := decodeResult(t, result)
	if payload["status"] != "success" {
		t.Fatalf("status = %v, want success", payload["status"])
	}
	if payload["os"] != runtime.GOOS {
		t.Fatalf("os = %v, want %s", payload["os"], runtime.GOOS)
	}
}
