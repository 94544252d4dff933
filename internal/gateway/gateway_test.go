package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/termgate/termgate/internal/hostinfo"
)

func testGateway() *Gateway {
	return New(hostinfo.Collect(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test uses unix commands")
	}
}

func TestExecuteEcho(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	result, err := g.Execute(context.Background(), "echo hello", 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Fatalf("stdout = %q, want it to contain hello", result.Stdout)
	}
}

func TestExecutePreservesQuotedArguments(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	result, err := g.Execute(context.Background(), `echo "a b" c`, 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimRight(result.Stdout, "\n"); got != "a b c" {
		t.Fatalf("stdout = %q, want %q", got, "a b c")
	}
}

func TestExecuteShellOperatorsAreInert(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	// Without a shell, the pipe is just an argument to echo.
	result, err := g.Execute(context.Background(), "echo one | tr a-z A-Z", 0)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(result.Stdout, "|") {
		t.Fatalf("pipe should be a literal argument, stdout = %q", result.Stdout)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	result, err := g.Execute(context.Background(), "false", 0)
	if err != nil {
		t.Fatalf("a failing command is still a successful operation: %v", err)
	}
	if result.ExitCode == 0 {
		t.Fatalf("exit code = 0, want non-zero")
	}
}

func TestExecuteTimeout(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	started := time.Now()
	_, err := g.Execute(context.Background(), "sleep 5", 1*time.Second)
	elapsed := time.Since(started)
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timeout enforced after %s, want <= 2s", elapsed)
	}
}

func TestExecuteLaunchFailure(t *testing.T) {
	g := testGateway()

	_, err := g.Execute(context.Background(), "definitely-not-a-real-binary-4711", 0)
	if !errors.Is(err, ErrCommandLaunch) {
		t.Fatalf("expected ErrCommandLaunch, got %v", err)
	}
}

func TestExecuteMalformedQuoting(t *testing.T) {
	g := testGateway()

	if _, err := g.Execute(context.Background(), `echo "unterminated`, 0); err == nil {
		t.Fatalf("expected a parse error for unterminated quote")
	}
}

func TestListDirectory(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lines, err := g.ListDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, line := range lines {
		if strings.Contains(line, "hello.txt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("listing does not mention hello.txt: %v", lines)
	}
}

func TestListDirectoryMissing(t *testing.T) {
	skipOnWindows(t)
	g := testGateway()

	if _, err := g.ListDirectory(context.Background(), "/no/such/dir/anywhere"); !errors.Is(err, ErrFileAccess) {
		t.Fatalf("expected ErrFileAccess, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	g := testGateway()

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	content, err := g.ReadFile(path, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if content != "one\ntwo\nthree\n" {
		t.Fatalf("content = %q", content)
	}

	capped, err := g.ReadFile(path, 2)
	if err != nil {
		t.Fatalf("read capped: %v", err)
	}
	if capped != "one\ntwo\n" {
		t.Fatalf("capped content = %q, want first two lines", capped)
	}
}

func TestReadFileMissing(t *testing.T) {
	g := testGateway()
	if _, err := g.ReadFile(filepath.Join(t.TempDir(), "absent"), 0); !errors.Is(err, ErrFileAccess) {
		t.Fatalf("expected ErrFileAccess, got %v", err)
	}
}

func TestReadFileBinaryRefused(t *testing.T) {
	g := testGateway()

	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := g.ReadFile(path, 0); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	g := testGateway()

	cases := map[string][]byte{
		"empty":    {},
		"text":     []byte("plain text\nwith lines\n"),
		"binary":   {0x00, 0xff, 0x1b, 0x80, 0x7f, 0xfe},
		"utf8-ish": []byte("héllo wörld"),
	}
	for name, payload := range cases {
		path := filepath.Join(t.TempDir(), name+".bin")
		up, err := g.Upload(path, base64.StdEncoding.EncodeToString(payload), false)
		if err != nil {
			t.Fatalf("%s: upload: %v", name, err)
		}
		if up.Size != len(payload) {
			t.Fatalf("%s: upload size = %d, want %d", name, up.Size, len(payload))
		}

		down, err := g.Download(path)
		if err != nil {
			t.Fatalf("%s: download: %v", name, err)
		}
		got, err := base64.StdEncoding.DecodeString(down.Content)
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("%s: round trip mismatch: got %v want %v", name, got, payload)
		}
		if down.Size != len(payload) {
			t.Fatalf("%s: download size = %d, want %d", name, down.Size, len(payload))
		}
		if !filepath.IsAbs(down.Path) {
			t.Fatalf("%s: download path %q is not absolute", name, down.Path)
		}
	}
}

func TestUploadOverwriteGuard(t *testing.T) {
	g := testGateway()

	path := filepath.Join(t.TempDir(), "guarded.txt")
	original := []byte("original content")
	if _, err := g.Upload(path, base64.StdEncoding.EncodeToString(original), false); err != nil {
		t.Fatalf("initial upload: %v", err)
	}

	_, err := g.Upload(path, base64.StdEncoding.EncodeToString([]byte("intruder")), false)
	if !errors.Is(err, ErrOverwriteRefused) {
		t.Fatalf("expected ErrOverwriteRefused, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(data, original) {
		t.Fatalf("refused overwrite must leave the file unchanged, got %q", data)
	}

	replacement := []byte("replacement")
	if _, err := g.Upload(path, base64.StdEncoding.EncodeToString(replacement), true); err != nil {
		t.Fatalf("overwrite upload: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(data, replacement) {
		t.Fatalf("overwrite=true must replace content, got %q", data)
	}
}

func TestUploadCreatesParentDirectories(t *testing.T) {
	g := testGateway()

	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	if _, err := g.Upload(path, base64.StdEncoding.EncodeToString([]byte("deep")), false); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
}

func TestUploadMalformedBase64(t *testing.T) {
	g := testGateway()

	path := filepath.Join(t.TempDir(), "bad.bin")
	if _, err := g.Upload(path, "%%% not base64 %%%", false); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("malformed upload must not create the file")
	}
}

func TestDownloadMissingAndDirectory(t *testing.T) {
	g := testGateway()

	if _, err := g.Download(filepath.Join(t.TempDir(), "absent")); !errors.Is(err, ErrFileAccess) {
		t.Fatalf("expected ErrFileAccess for missing file, got %v", err)
	}
	if _, err := g.Download(t.TempDir()); !errors.Is(err, ErrFileAccess) {
		t.Fatalf("expected ErrFileAccess for directory, got %v", err)
	}
}
