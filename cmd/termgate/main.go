package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cliconfig "github.com/termgate/termgate/internal/cli/config"
	"github.com/termgate/termgate/internal/gateway"
	"github.com/termgate/termgate/internal/hostinfo"
	"github.com/termgate/termgate/internal/tunnel"
)

var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

type rootOptions struct {
	server     string
	token      string
	remotePort int
	localPort  int
	tunnelName string
	configPath string
	logLevel   string
	saveConfig bool
}

// buildVersion folds the ldflags-injected build metadata into one string for
// --version output and the startup log.
func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if buildTime != "" {
		v += " built " + buildTime
	}
	return v
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "termgate",
		Short: "Expose this machine's terminal over a reverse tunnel",
		Long: "termgate serves a remote-terminal tool catalog on a local port and\n" +
			"publishes it through an frp reverse tunnel to a relay server.",
		SilenceUsage: true,
		Version:      buildVersion(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts)
		},
	}

	defaultConfig := os.Getenv("TERMGATE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	flags := rootCmd.Flags()
	flags.StringVarP(&opts.server, "server", "s", "", "relay server address")
	flags.StringVarP(&opts.token, "token", "t", "", "relay auth token")
	flags.IntVarP(&opts.remotePort, "remote-port", "r", 0, "port the relay exposes for this tunnel")
	flags.IntVarP(&opts.localPort, "local-port", "l", 0, "local gateway port (default 8001)")
	flags.StringVarP(&opts.tunnelName, "name", "n", "", "tunnel name (default termgate-<random>)")
	flags.StringVar(&opts.configPath, "config", defaultConfig, "path to defaults file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.BoolVar(&opts.saveConfig, "save-config", false, "persist the merged settings to the defaults file")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// mergeConfig fills unset flags from the defaults file and applies built-in
// defaults. Flags always win.
func (o *rootOptions) mergeConfig() error {
	cfg, err := cliconfig.Load(o.configPath)
	if err != nil {
		return err
	}
	if cfg != nil {
		if o.server == "" {
			o.server = cfg.Server
		}
		if o.token == "" {
			o.token = cfg.Token
		}
		if o.remotePort == 0 {
			o.remotePort = cfg.RemotePort
		}
		if o.localPort == 0 {
			o.localPort = cfg.LocalPort
		}
		if o.tunnelName == "" {
			o.tunnelName = cfg.Name
		}
	}
	if o.localPort == 0 {
		o.localPort = 8001
	}
	if o.tunnelName == "" {
		o.tunnelName = "termgate-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	if o.server == "" {
		return fmt.Errorf("relay server address is required (--server or config file)")
	}
	if o.token == "" {
		return fmt.Errorf("relay auth token is required (--token or config file)")
	}
	if o.remotePort == 0 {
		return fmt.Errorf("remote port is required (--remote-port or config file)")
	}
	return nil
}

// saveDefaults persists the merged settings so the next run can omit the relay
// flags. The token lands on disk, so Save keeps the file 0600.
func (o *rootOptions) saveDefaults() error {
	cfg := &cliconfig.Config{
		Server:     o.server,
		Token:      o.token,
		RemotePort: o.remotePort,
		LocalPort:  o.localPort,
		Name:       o.tunnelName,
	}
	return cfg.Save(o.configPath)
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch l := strings.ToLower(strings.TrimSpace(logLevel)); l {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		// Keep it user-friendly: warn and continue with info.
		log.Printf("unknown -log-level=%q (expected debug|info|warn|error); defaulting to info", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(opts *rootOptions) error {
	if err := opts.mergeConfig(); err != nil {
		return err
	}
	logger := newLogger(opts.logLevel)

	if opts.saveConfig {
		if err := opts.saveDefaults(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logger.Info("defaults saved", "path", opts.configPath)
	}

	host := hostinfo.Collect()
	logger.Info("starting termgate",
		"version", buildVersion(),
		"host", host.Hostname,
		"platform", host.OS+"/"+host.Arch,
		"tunnel", opts.tunnelName,
		"relay", opts.server,
		"remote_port", opts.remotePort,
		"local_port", opts.localPort,
	)

	workDir := filepath.Join(os.TempDir(), "termgate")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cache := tunnel.NewCache(workDir, logger)
	sup := tunnel.NewSupervisor(cache, tunnel.Config{
		ServerAddr: opts.server,
		Token:      opts.token,
		TunnelName: opts.tunnelName,
		LocalPort:  opts.localPort,
		RemotePort: opts.remotePort,
	}, filepath.Join(workDir, "frpc.toml"), logger)

	if err := sup.Start(ctx); err != nil {
		sup.Stop()
		return fmt.Errorf("tunnel startup: %w", err)
	}
	defer sup.Stop()

	gw := gateway.New(host, logger)
	srv := gateway.NewServer(gw, version, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", opts.localPort))
	}()

	logger.Info("remote endpoint available",
		"url", fmt.Sprintf("http://%s:%d/mcp", opts.server, opts.remotePort),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("gateway: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "err", err)
	}
	return nil
}
