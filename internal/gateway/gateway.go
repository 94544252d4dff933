// Package gateway implements the fixed tool catalog exposed to remote
// callers: command execution, directory listing, and file read/upload/
// download. Every operation is synchronous and isolates its own failures; a
// bad command or missing file never affects other in-flight calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/shlex"

	"github.com/termgate/termgate/internal/hostinfo"
)

// DefaultCommandTimeout bounds execute_command when the caller does not give
// a budget.
const DefaultCommandTimeout = 30 * time.Second

// Gateway executes tool operations against the local machine. The host info
// is injected at construction and only used for descriptions and the
// system_info operation.
type Gateway struct {
	host   hostinfo.Info
	logger *slog.Logger
}

func New(host hostinfo.Info, logger *slog.Logger) *Gateway {
	return &Gateway{host: host, logger: logger}
}

// Host returns the immutable host context the gateway was built with.
func (g *Gateway) Host() hostinfo.Info {
	return g.host
}

// ExecResult carries the outcome of a completed command, successful or not.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Execute tokenizes the command with shell-quoting rules and runs it directly,
// without a shell: pipes, redirects, and globs are inert unless the caller
// names a shell interpreter as the command. The child is killed when the
// wall-clock budget elapses; on timeout the partial output is discarded and
// only the timeout error is returned.
func (g *Gateway) Execute(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		g.logger.Warn("command timed out", "command", args[0], "timeout", timeout)
		return nil, fmt.Errorf("%w after %s", ErrCommandTimeout, timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrCommandLaunch, runErr)
		}
	}

	result := &ExecResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	g.logger.Info("command finished",
		"command", args[0],
		"exit", result.ExitCode,
		"duration", time.Since(started).Truncate(time.Millisecond),
	)
	return result, nil
}

// ListDirectory shells out to the native listing command and returns its
// output lines.
func (g *Gateway) ListDirectory(ctx context.Context, path string) ([]string, error) {
	if path == "" {
		path = "."
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/c", "dir", path)
	} else {
		cmd = exec.CommandContext(ctx, "ls", "-la", path)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrFileAccess, detail)
	}
	lines := strings.Split(stdout.String(), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// ReadFile returns the file's text content, truncated to maxLines when the
// cap is positive. Binary content is refused rather than mangled.
func (g *Gateway) ReadFile(path string, maxLines int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrInvalidEncoding, path)
	}
	content := string(data)
	if maxLines > 0 {
		lines := strings.SplitAfter(content, "\n")
		if len(lines) > maxLines {
			content = strings.Join(lines[:maxLines], "")
		}
	}
	return content, nil
}

// UploadResult reports where an upload landed.
type UploadResult struct {
	Path string
	Size int
}

// Upload decodes the base64 payload and writes it to path, creating parent
// directories as needed. An existing destination is only replaced when
// overwrite is set; otherwise the existing bytes stay untouched.
func (g *Gateway) Upload(path, contentB64 string, overwrite bool) (*UploadResult, error) {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrOverwriteRefused, path)
	}

	data, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64 content: %v", ErrInvalidEncoding, err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	g.logger.Info("file uploaded", "path", abs, "bytes", len(data))
	return &UploadResult{Path: abs, Size: len(data)}, nil
}

// DownloadResult carries a file's content in transport-safe form.
type DownloadResult struct {
	Path    string
	Content string // base64
	Size    int
}

// Download reads a regular file and returns its content base64-encoded so
// arbitrary binary data survives the text-only transport.
func (g *Gateway) Download(path string) (*DownloadResult, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory, not a file", ErrFileAccess, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &DownloadResult{
		Path:    abs,
		Content: base64.StdEncoding.EncodeToString(data),
		Size:    len(data),
	}, nil
}
