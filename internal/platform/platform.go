// Package platform maps the host (OS, architecture) pair to a download URL for
// the pinned frp client release. The table must stay in sync with the client
// version the relay server expects.
package platform

import (
	"errors"
	"fmt"
)

// ClientVersion is the pinned frp release. Upgrading it requires upgrading the
// relay server in lockstep.
const ClientVersion = "0.65.0"

// ErrUnsupportedPlatform indicates the host (OS, architecture) pair has no
// known frp client build.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

type key struct {
	os   string
	arch string
}

var downloadURLs = map[key]string{
	{"linux", "amd64"}:   releaseURL("linux_amd64", "tar.gz"),
	{"linux", "arm64"}:   releaseURL("linux_arm64", "tar.gz"),
	{"darwin", "amd64"}:  releaseURL("darwin_amd64", "tar.gz"),
	{"darwin", "arm64"}:  releaseURL("darwin_arm64", "tar.gz"),
	{"windows", "amd64"}: releaseURL("windows_amd64", "zip"),
}

func releaseURL(platform, ext string) string {
	return fmt.Sprintf(
		"https://github.com/fatedier/frp/releases/download/v%s/frp_%s_%s.%s",
		ClientVersion, ClientVersion, platform, ext,
	)
}

// Resolve returns the release archive URL for the given pair. The arguments
// use the runtime.GOOS / runtime.GOARCH vocabulary.
func Resolve(goos, goarch string) (string, error) {
	url, ok := downloadURLs[key{goos, goarch}]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return url, nil
}

// ClientName returns the frp client executable name for the given OS.
func ClientName(goos string) string {
	if goos == "windows" {
		return "frpc.exe"
	}
	return "frpc"
}

// Supported lists every (OS, architecture) pair in the table, for diagnostics
// and tests.
func Supported() [][2]string {
	pairs := make([][2]string, 0, len(downloadURLs))
	for k := range downloadURLs {
		pairs = append(pairs, [2]string{k.os, k.arch})
	}
	return pairs
}
