package hostinfo

import (
	"runtime"
	"testing"
)

func TestCollect(t *testing.T) {
	info := Collect()
	if info.OS != runtime.GOOS {
		t.Fatalf("expected OS %s, got %s", runtime.GOOS, info.OS)
	}
	if info.Arch != runtime.GOARCH {
		t.Fatalf("expected arch %s, got %s", runtime.GOARCH, info.Arch)
	}
	if info.Hostname == "" {
		t.Fatalf("hostname must not be empty")
	}
	if info.User == "" {
		t.Fatalf("user must not be empty")
	}
	if info.Shell == "" {
		t.Fatalf("shell must not be empty")
	}
}

func TestCurrentShellEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SHELL is not consulted on windows")
	}
	t.Setenv("SHELL", "/bin/zsh")
	if got := currentShell(); got != "/bin/zsh" {
		t.Fatalf("expected /bin/zsh, got %s", got)
	}
}
