package tunnel

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// relayPort is the fixed control port the frp server listens on.
const relayPort = 7000

// Config holds the per-run tunnel parameters. It is built once from
// caller-supplied values and never mutated.
type Config struct {
	ServerAddr string
	Token      string
	TunnelName string
	LocalPort  int
	RemotePort int
}

// clientConfig mirrors the frpc TOML schema (frp >= 0.52).
type clientConfig struct {
	ServerAddr string          `toml:"serverAddr"`
	ServerPort int             `toml:"serverPort"`
	Auth       authConfig      `toml:"auth"`
	Transport  transportConfig `toml:"transport"`
	Proxies    []proxyConfig   `toml:"proxies"`
}

type authConfig struct {
	Method string `toml:"method"`
	Token  string `toml:"token"`
}

type transportConfig struct {
	TLS tlsConfig `toml:"tls"`
}

type tlsConfig struct {
	Enable bool `toml:"enable"`
}

type proxyConfig struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	LocalIP    string `toml:"localIP"`
	LocalPort  int    `toml:"localPort"`
	RemotePort int    `toml:"remotePort"`
}

func (c Config) render() ([]byte, error) {
	doc := clientConfig{
		ServerAddr: c.ServerAddr,
		ServerPort: relayPort,
		Auth: authConfig{
			Method: "token",
			Token:  c.Token,
		},
		Transport: transportConfig{
			TLS: tlsConfig{Enable: true},
		},
		Proxies: []proxyConfig{
			{
				Name:       c.TunnelName,
				Type:       "tcp",
				LocalIP:    "127.0.0.1",
				LocalPort:  c.LocalPort,
				RemotePort: c.RemotePort,
			},
		},
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode tunnel config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders the frpc configuration to path, replacing any previous
// content. The file carries the auth token, so it is written 0600 and removed
// by the supervisor on shutdown.
func (c Config) WriteFile(path string) error {
	data, err := c.render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write tunnel config: %w", err)
	}
	return nil
}
