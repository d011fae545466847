package server

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures a Server. It is the YAML-loadable counterpart to
// command-line switches like "--query-server PORT" or
// "--query-forking-server PORT", plus a password/peer-IP gate.
//
// LoadConfig reads one from a YAML file. The serve command in cmd/archer
// does not read a config file; it builds its Config from flags through
// DefaultConfig.
type Config struct {
	// QueryAddr is the address the query socket listens on, e.g.
	// "127.0.0.1:8313" or a filesystem path for a Unix-domain socket.
	QueryAddr string `yaml:"query_addr"`

	// AdminAddr is the address the admin (reindex) socket listens on. Empty
	// disables the admin socket entirely.
	AdminAddr string `yaml:"admin_addr"`

	// MaxConnections bounds how many query connections are served at once,
	// replacing a per-connection fork() with a bounded goroutine pool. Zero
	// means unbounded.
	MaxConnections int64 `yaml:"max_connections"`

	// PasswordHash, if non-empty, is a hex-encoded SHA-256 digest that a
	// client's password line must hash to before the connection proceeds
	// past the greeting. Empty disables the password gate. SHA-256 stands in
	// for a crypt(3) hash, which has no standard-library Go equivalent.
	PasswordHash string `yaml:"password_hash"`

	// AllowedPeers restricts which client IPs may connect. An empty list,
	// or a list containing "255.255.255.255", allows any peer.
	AllowedPeers []string `yaml:"allowed_peers"`
}

// DefaultConfig returns a Config with the given query and admin addresses
// and no auth, no peer restriction, no connection cap. The caller picks the
// admin address (cmd/archer's serve uses PORT+1 unless told otherwise).
func DefaultConfig(queryAddr, adminAddr string) Config {
	return Config{QueryAddr: queryAddr, AdminAddr: adminAddr}
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// allowAnyPeer reports whether cfg's allowlist permits every peer.
func (cfg Config) allowAnyPeer() bool {
	if len(cfg.AllowedPeers) == 0 {
		return true
	}
	for _, p := range cfg.AllowedPeers {
		if p == "255.255.255.255" {
			return true
		}
	}
	return false
}
