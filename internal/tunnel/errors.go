package tunnel

import "errors"

// Startup-phase failures. All of them are fatal for the run: the caller must
// clean up and exit non-zero rather than serve tool calls without a tunnel.
var (
	// ErrDownload indicates the client archive could not be fetched.
	ErrDownload = errors.New("tunnel client download failed")
	// ErrExtraction indicates the archive was unreadable or did not contain
	// the client executable.
	ErrExtraction = errors.New("tunnel client extraction failed")
	// ErrTunnelStartup indicates the client process exited before it was
	// confirmed alive. The error text carries the process's captured output.
	ErrTunnelStartup = errors.New("tunnel client failed to start")
)
