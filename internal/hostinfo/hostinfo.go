// Package hostinfo describes the machine the agent runs on. The Info value is
// collected once at startup and passed to whatever needs it; nothing in this
// package holds state.
package hostinfo

import (
	"os"
	"os/user"
	"runtime"
)

// Info identifies the host for tool descriptions and the system_info tool.
type Info struct {
	OS       string
	Arch     string
	Hostname string
	User     string
	Shell    string
}

// Collect reads the host environment. Fields that cannot be determined are
// filled with "unknown" rather than failing; the agent is still usable.
func Collect() Info {
	info := Info{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	} else {
		info.Hostname = "unknown"
	}

	info.User = currentUser()
	info.Shell = currentShell()
	return info
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	return "unknown"
}

func currentShell() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe / PowerShell"
	}
	if v := os.Getenv("SHELL"); v != "" {
		return v
	}
	return "/bin/sh"
}
