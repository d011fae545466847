package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-mizu/archer"
)

// serveAdminConn drives one admin-socket connection:
// "index <path>", "nindex <path> <markup-path>", "help", "quit". Unlike the
// query socket, every admin response is XML-wrapped unconditionally. mu is
// the server-wide reader/writer guard shared with the query socket:
// index/nindex hold it exclusively for the duration of the write so no
// query command observes a half-written posting.
func serveAdminConn(ctx context.Context, idx *archer.Index, conn net.Conn, log zerolog.Logger, mu *sync.RWMutex) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	if _, err := w.WriteString("archer-admin 1.0 ready\n"); err != nil {
		return
	}
	w.Flush()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.WriteString(readyPrompt); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		start := time.Now()
		quit, resp := dispatchAdmin(idx, line, mu)
		if _, err := w.WriteString(resp); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Str("command", firstWord(line)).
			Dur("elapsed", time.Since(start)).Msg("admin command")
		if quit {
			return
		}
	}
}

func dispatchAdmin(idx *archer.Index, line string, mu *sync.RWMutex) (quit bool, resp string) {
	cmd, rest := splitCommand(line)
	switch strings.ToLower(cmd) {
	case "help":
		return false, wrapResult("<help>help, index, nindex, quit</help>")
	case "quit":
		return true, wrapResult("bye")
	case "index":
		return false, runIndex(idx, rest, mu)
	case "nindex":
		return false, runNindex(idx, rest, mu)
	default:
		return false, wrapError(fmt.Sprintf("unknown admin command %q", cmd))
	}
}

// runIndex indexes the file or directory at path into the live index
// in-place. A directory is walked recursively, mirroring Index.IndexDir; a
// regular file is indexed under its own path.
func runIndex(idx *archer.Index, rest string, mu *sync.RWMutex) string {
	path := strings.TrimSpace(rest)
	if path == "" {
		return wrapError("index: missing path")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return wrapError(err.Error())
	}

	mu.Lock()
	defer mu.Unlock()
	if fi.IsDir() {
		if err := idx.IndexDir(path); err != nil {
			return wrapError(err.Error())
		}
	} else if err := idx.IndexFile(path); err != nil {
		return wrapError(err.Error())
	}
	return wrapResult(fmt.Sprintf("<indexed>%s</indexed>", path))
}

// runNindex indexes markupPath's content under key path: path is the
// document's key in the doc table, markupPath is a separately supplied
// pre-tagged source for it, useful when the tags come from an external
// markup pass rather than the raw file at path itself.
func runNindex(idx *archer.Index, rest string, mu *sync.RWMutex) string {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return wrapError("nindex: expected \"nindex <path> <markup-path>\"")
	}
	path, markupPath := fields[0], fields[1]

	mu.Lock()
	defer mu.Unlock()
	if err := idx.IndexAs(path, markupPath); err != nil {
		return wrapError(err.Error())
	}
	return wrapResult(fmt.Sprintf("<indexed>%s</indexed>", path))
}
