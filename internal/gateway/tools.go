package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(s.executeCommandTool(), s.handleExecuteCommand)
	s.mcp.AddTool(s.listDirectoryTool(), s.handleListDirectory)
	s.mcp.AddTool(s.readFileTool(), s.handleReadFile)
	s.mcp.AddTool(s.uploadFileTool(), s.handleUploadFile)
	s.mcp.AddTool(s.downloadFileTool(), s.handleDownloadFile)
	s.mcp.AddTool(s.systemInfoTool(), s.handleSystemInfo)
}

// Tool definitions. Descriptions embed the host context so a remote caller
// knows which machine and shell it is talking to.

func (s *Server) executeCommandTool() mcp.Tool {
	host := s.gw.Host()
	return mcp.NewTool("execute_command",
		mcp.WithDescription(fmt.Sprintf(
			"Execute a terminal command on %s (%s/%s, user %s, shell %s). "+
				"The command is tokenized with shell-quoting rules but NOT run through a shell: "+
				"pipes, redirects and globs only work if you invoke a shell explicitly, "+
				"e.g. sh -c \"ls | wc -l\". On Windows use: cmd /c <command>.",
			host.Hostname, host.OS, host.Arch, host.User, host.Shell,
		)),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to execute"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Command timeout in seconds (default: 30)"),
		),
	)
}

func (s *Server) listDirectoryTool() mcp.Tool {
	host := s.gw.Host()
	return mcp.NewTool("list_directory",
		mcp.WithDescription(fmt.Sprintf(
			"List files and directories at a path on %s (%s).",
			host.Hostname, host.OS,
		)),
		mcp.WithString("path",
			mcp.Description("Directory to list (default: current directory)"),
		),
	)
}

func (s *Server) readFileTool() mcp.Tool {
	host := s.gw.Host()
	return mcp.NewTool("read_file",
		mcp.WithDescription(fmt.Sprintf(
			"Read a text file on %s (%s). Binary files are refused; use download_file for those.",
			host.Hostname, host.OS,
		)),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path of the file to read"),
		),
		mcp.WithNumber("max_lines",
			mcp.Description("Maximum number of lines to return (default: all)"),
		),
	)
}

func (s *Server) uploadFileTool() mcp.Tool {
	host := s.gw.Host()
	return mcp.NewTool("upload_file",
		mcp.WithDescription(fmt.Sprintf(
			"Write a base64-encoded payload to a file on %s (%s). "+
				"Supports text and binary content. Refuses to replace an existing file unless overwrite is set.",
			host.Hostname, host.OS,
		)),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Destination path (absolute or relative)"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Base64-encoded file content"),
		),
		mcp.WithBoolean("overwrite",
			mcp.Description("Replace an existing file (default: false)"),
		),
	)
}

func (s *Server) downloadFileTool() mcp.Tool {
	host := s.gw.Host()
	return mcp.NewTool("download_file",
		mcp.WithDescription(fmt.Sprintf(
			"Read a file on %s (%s) and return its content base64-encoded. "+
				"Supports text and binary files.",
			host.Hostname, host.OS,
		)),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path of the file to download"),
		),
	)
}

func (s *Server) systemInfoTool() mcp.Tool {
	return mcp.NewTool("system_info",
		mcp.WithDescription("Describe the host this agent runs on: OS, architecture, hostname, user, and shell."),
	)
}

// Tool handlers. Every failure inside an operation becomes a structured error
// result; handlers never return a Go error for operational failures.

func (s *Server) handleExecuteCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := mcp.ParseString(req, "command", "")
	if command == "" {
		return errorResult(fmt.Errorf("command is required"))
	}
	timeoutSec := mcp.ParseInt(req, "timeout", 30)

	result, err := s.gw.Execute(ctx, command, time.Duration(timeoutSec)*time.Second)
	if err != nil {
		return errorResult(err)
	}
	return successResult(map[string]any{
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
	})
}

func (s *Server) handleListDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", ".")

	lines, err := s.gw.ListDirectory(ctx, path)
	if err != nil {
		return errorResult(err)
	}
	return successResult(map[string]any{
		"output": lines,
	})
}

func (s *Server) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "file_path", "")
	if path == "" {
		return errorResult(fmt.Errorf("file_path is required"))
	}
	maxLines := mcp.ParseInt(req, "max_lines", 0)

	content, err := s.gw.ReadFile(path, maxLines)
	if err != nil {
		return errorResult(err)
	}
	return successResult(map[string]any{
		"content": content,
	})
}

func (s *Server) handleUploadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "file_path", "")
	if path == "" {
		return errorResult(fmt.Errorf("file_path is required"))
	}
	content := mcp.ParseString(req, "content", "")
	overwrite := mcp.ParseBoolean(req, "overwrite", false)

	result, err := s.gw.Upload(path, content, overwrite)
	if err != nil {
		return errorResult(err)
	}
	return successResult(map[string]any{
		"message":   "File uploaded successfully",
		"file_path": result.Path,
		"file_size": result.Size,
	})
}

func (s *Server) handleDownloadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "file_path", "")
	if path == "" {
		return errorResult(fmt.Errorf("file_path is required"))
	}

	result, err := s.gw.Download(path)
	if err != nil {
		return errorResult(err)
	}
	return successResult(map[string]any{
		"message":   "File downloaded successfully",
		"file_path": result.Path,
		"file_size": result.Size,
		"content":   result.Content,
	})
}

func (s *Server) handleSystemInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := s.gw.Host()
	return successResult(map[string]any{
		"os":       host.OS,
		"arch":     host.Arch,
		"hostname": host.Hostname,
		"user":     host.User,
		"shell":    host.Shell,
	})
}

// successResult encodes the payload with the status discriminator set to
// "success".
func successResult(fields map[string]any) (*mcp.CallToolResult, error) {
	fields["status"] = "success"
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult encodes the failure as a tagged error payload. The transport
// still sees a normal tool result, keeping per-call failures local.
func errorResult(opErr error) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(map[string]any{
		"status": "error",
		"error":  opErr.Error(),
	})
	if err != nil {
		return mcp.NewToolResultError(opErr.Error()), nil
	}
	return mcp.NewToolResultError(string(data)), nil
}
