package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-mizu/archer"
)

// newFixtureIndex builds an archer.Index over three real on-disk files so
// dump (which re-reads the source by path) has something to read.
func newFixtureIndex(t *testing.T) (*archer.Index, string) {
	t.Helper()
	dir := t.TempDir()
	idx, err := archer.Create(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	docs := map[string]string{
		"a.txt": "foo bar foo",
		"b.txt": "bar baz",
		"c.txt": "foo foo bar",
	}
	for name, text := range docs {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		require.NoError(t, idx.IndexFile(path))
	}
	return idx, dir
}

// startTestServer starts a Server on loopback TCP addresses and returns a
// function that dials the query socket, plus a context-cancel func to stop
// the server.
func startTestServer(t *testing.T, idx *archer.Index, cfg Config) (dialQuery func() net.Conn, stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Resolve a free port by doing a throwaway listen first, then reuse the
	// chosen address for the real server (net.Listen(":0") picks one).
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	queryAddr := ln.Addr().String()
	ln.Close()

	cfg.QueryAddr = queryAddr
	srv := New(idx, cfg)

	go func() { done <- srv.ListenAndServe(ctx) }()

	// Poll until the listener is accepting connections.
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", queryAddr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return func() net.Conn {
			conn, err := net.Dial("tcp", queryAddr)
			require.NoError(t, err)
			return conn
		}, func() {
			cancel()
			<-done
		}
}

// client wraps a connection with line-oriented read/write helpers matching
// the ready-prompt protocol.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newClient(t *testing.T, conn net.Conn) *client {
	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	c.readLine() // greeting
	return c
}

func (c *client) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line
}

// send reads the ready prompt, writes cmd, and reads back the full response
// up to (but not including) the next ready prompt.
func (c *client) send(cmd string) string {
	c.t.Helper()
	prompt := c.readLine()
	require.Equal(c.t, readyPrompt, prompt)
	_, err := c.conn.Write([]byte(cmd + "\n"))
	require.NoError(c.t, err)
	return c.readLine()
}

func TestServerDocsAndFields(t *testing.T) {
	idx, _ := newFixtureIndex(t)
	dial, stop := startTestServer(t, idx, Config{})
	defer stop()

	c := newClient(t, dial())
	defer c.conn.Close()

	resp := c.send("docs")
	require.Contains(t, resp, "<doclist>")
	require.Contains(t, resp, "<document>")

	resp = c.send("fields")
	require.Contains(t, resp, "<fieldlist>")
}

func TestServerQueryAndHits(t *testing.T) {
	idx, _ := newFixtureIndex(t)
	dial, stop := startTestServer(t, idx, Config{})
	defer stop()

	c := newClient(t, dial())
	defer c.conn.Close()

	resp := c.send("query foo")
	require.Contains(t, resp, "<hitlist>")
	require.Contains(t, resp, "<count>2</count>")

	resp = c.send("hits 0 0")
	require.Contains(t, resp, "hits window set")

	resp = c.send("query foo")
	require.Contains(t, resp, "<count>2</count>")
	require.Equal(t, 1, strings.Count(resp, "<hit>"))
}

func TestServerRankAndDump(t *testing.T) {
	idx, dir := newFixtureIndex(t)
	dial, stop := startTestServer(t, idx, Config{})
	defer stop()

	c := newClient(t, dial())
	defer c.conn.Close()

	resp := c.send(fmt.Sprintf("rank %s foo", filepath.Join(dir, "a.txt")))
	require.Contains(t, resp, "<rank>")
	require.NotContains(t, resp, "not found")

	resp = c.send(fmt.Sprintf("rank %s zzz", filepath.Join(dir, "a.txt")))
	require.Contains(t, resp, "not found")

	c.send("query foo")
	di, live, err := idx.DocIndex(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.True(t, live)

	resp = c.send(fmt.Sprintf("dump %d", di))
	require.Contains(t, resp, "<dump>")
	require.Contains(t, resp, "<match>foo</match>")
}

func TestServerQuitClosesConnection(t *testing.T) {
	idx, _ := newFixtureIndex(t)
	dial, stop := startTestServer(t, idx, Config{})
	defer stop()

	c := newClient(t, dial())
	resp := c.send("quit")
	require.Contains(t, resp, "bye")
}

func TestCheckPeerAllowlist(t *testing.T) {
	cfg := Config{AllowedPeers: []string{"10.0.0.1"}}
	require.Error(t, checkPeer(cfg, mustAddr("10.0.0.2:9999")))
	require.NoError(t, checkPeer(cfg, mustAddr("10.0.0.1:9999")))

	cfg = Config{AllowedPeers: []string{"255.255.255.255"}}
	require.NoError(t, checkPeer(cfg, mustAddr("1.2.3.4:1")))
}

func TestCheckPassword(t *testing.T) {
	// sha256("secret")
	cfg := Config{PasswordHash: "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"}
	require.NoError(t, checkPassword(cfg, "secret"))
	require.Error(t, checkPassword(cfg, "wrong"))
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func mustAddr(s string) fakeAddr { return fakeAddr(s) }
