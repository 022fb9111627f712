// Package config holds the server's runtime configuration and the
// cobra/pflag command that populates it, grounded on
// kubernetes-kubernetes's cmd/kubeadm/app/cmd flag-binding style
// (one struct, one BindFlags method, defaults set before binding).
package config

import (
	"github.com/spf13/pflag"
)

// Config collects everything cmd/gitgud-server needs to start serving.
type Config struct {
	// ListenAddr is the TCP address the HTTP adapter binds to.
	ListenAddr string

	// ReposRoot is the filesystem directory under which each
	// <owner>/<repo>.git directory is opened by the gitfs agent.
	ReposRoot string

	// Realm is sent in the WWW-Authenticate: Basic challenge.
	Realm string

	// AllowAnonymousRead permits unauthenticated upload-pack when true.
	AllowAnonymousRead bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Default returns the configuration's zero-value-free defaults.
func Default() *Config {
	return &Config{
		ListenAddr:         ":8080",
		ReposRoot:          "./repositories",
		Realm:              "gitgud",
		AllowAnonymousRead: true,
		LogLevel:           "info",
	}
}

// BindFlags registers c's fields onto fs, so callers can combine
// defaults, flags and (later) env/config-file sources the way cobra
// commands conventionally do.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "address to listen on")
	fs.StringVar(&c.ReposRoot, "repos-root", c.ReposRoot, "directory containing served repositories")
	fs.StringVar(&c.Realm, "realm", c.Realm, "HTTP Basic auth realm")
	fs.BoolVar(&c.AllowAnonymousRead, "allow-anonymous-read", c.AllowAnonymousRead, "allow unauthenticated upload-pack")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
}
