package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net"
	"strings"
)

// ErrAuth is returned (and the connection silently closed) when a client's
// password line does not match the configured hash.
var ErrAuth = errors.New("server: authentication failed")

// ErrAccessDenied is returned (and the connection closed) when a peer's
// address does not match the configured allowlist.
var ErrAccessDenied = errors.New("server: access denied")

// checkPeer enforces cfg's AllowedPeers gate.
func checkPeer(cfg Config, addr net.Addr) error {
	if cfg.allowAnyPeer() {
		return nil
	}
	host := addrHost(addr)
	for _, p := range cfg.AllowedPeers {
		if p == host {
			return nil
		}
	}
	return ErrAccessDenied
}

func addrHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// checkPassword hashes candidate and compares it, in constant time, against
// cfg's configured hash. An empty cfg.PasswordHash disables the gate
// entirely.
func checkPassword(cfg Config, candidate string) error {
	if cfg.PasswordHash == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(strings.TrimRight(candidate, "\r\n")))
	got := hex.EncodeToString(sum[:])
	want := strings.ToLower(cfg.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrAuth
	}
	return nil
}
