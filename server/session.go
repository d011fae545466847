package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-mizu/archer"
	"github.com/go-mizu/archer/dump"
	"github.com/go-mizu/archer/query"
	"github.com/go-mizu/archer/queryexec"
)

// hitWindow is the per-session slice applied to the next hitlist response.
// A zero hitWindow shows every hit; "hits all" resets to the zero value,
// while "hits 0 N" sets an explicit, possibly equal, window.
type hitWindow struct {
	set         bool
	first, last int
}

func (w hitWindow) slice(results []queryexec.Result) []queryexec.Result {
	if !w.set {
		return results
	}
	first, last := w.first, w.last
	if first < 0 {
		first = 0
	}
	if last >= len(results) {
		last = len(results) - 1
	}
	if first > last || first >= len(results) {
		return nil
	}
	return results[first : last+1]
}

// session holds per-connection state for the query socket: the last
// query/result pair and hit window, scoped to one connection rather than
// shared process-wide mutable state.
type session struct {
	idx  *archer.Index
	conn net.Conn
	log  zerolog.Logger
	mu   *sync.RWMutex

	win        hitWindow
	lastQuery  query.Query
	lastResult []queryexec.Result
	haveQuery  bool
}

// serveQueryConn drives one query-socket connection's command loop until
// the client disconnects or ctx is canceled. mu is the server-wide
// reader/writer guard shared with the admin socket.
func serveQueryConn(ctx context.Context, idx *archer.Index, conn net.Conn, log zerolog.Logger, mu *sync.RWMutex) {
	defer conn.Close()

	s := &session{idx: idx, conn: conn, log: log, mu: mu, win: hitWindow{}}
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	greeting := "archer 1.0 ready\n"
	if _, err := w.WriteString(greeting); err != nil {
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
		conn.SetReadDeadline(time.Time{})
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		start := time.Now()
		s.mu.RLock()
		quit, resp := s.dispatch(ctx, line)
		s.mu.RUnlock()
		if _, err := w.WriteString(resp); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Str("command", firstWord(line)).
			Dur("elapsed", time.Since(start)).Msg("query command")
		if quit {
			return
		}
	}
}

// dispatch runs one command line and returns the response text and whether
// the connection should close.
func (s *session) dispatch(ctx context.Context, line string) (quit bool, resp string) {
	cmd, rest := splitCommand(line)
	switch strings.ToLower(cmd) {
	case "help":
		return false, wrapResult(helpText)
	case "quit":
		return true, wrapResult("bye")
	case "query", "nquery":
		return false, s.runQuery(ctx, rest)
	case "dump":
		return false, s.runDump(ctx, rest, true)
	case "ndump":
		return false, s.runDump(ctx, rest, false)
	case "hits":
		return false, s.runHits(rest)
	case "docs":
		return false, wrapResult(renderDoclist(s.idx.DocEntries()))
	case "fields":
		return false, wrapResult(renderFieldlist(s.idx.FieldNames()))
	case "rank":
		return false, s.runRank(ctx, rest)
	default:
		return false, wrapError(fmt.Sprintf("unknown command %q", cmd))
	}
}

func (s *session) runQuery(ctx context.Context, text string) string {
	q, err := query.Parse(text)
	if err != nil {
		return wrapError(err.Error())
	}
	results, err := s.idx.QueryAST(ctx, q)
	if err != nil {
		return wrapError(err.Error())
	}
	s.lastQuery, s.lastResult, s.haveQuery = q, results, true
	return wrapResult(renderHitlist(s.idx, results, s.win))
}

// runDump implements the "dump"/"ndump" commands: re-run the last query
// restricted to di, then highlight the source at the resulting matched
// positions. legacy accepts an optional explicit path argument; ndump
// always resolves the path from the index.
func (s *session) runDump(ctx context.Context, rest string, legacy bool) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return wrapError("dump: missing document id")
	}
	di64, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return wrapError("dump: invalid document id")
	}
	di := int32(di64)

	path := s.idx.DocPath(di)
	if legacy && len(fields) > 1 {
		path = fields[1]
	}
	if path == "" {
		return wrapError("dump: unknown document id")
	}

	if !s.haveQuery {
		return wrapError("dump: no prior query")
	}
	restricted := s.lastQuery
	restricted.DocRestriction = di
	results, err := s.idx.QueryAST(ctx, restricted)
	if err != nil {
		return wrapError(err.Error())
	}

	var pis []int32
	for _, r := range results {
		if r.Di != di {
			continue
		}
		for _, occ := range r.WordOccurrences {
			pis = append(pis, occ.Pis...)
		}
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return wrapError(fmt.Sprintf("dump: reading %s: %v", path, err))
	}
	out, err := dump.Highlight(src, pis)
	if err != nil {
		return wrapError(err.Error())
	}
	return wrapResult("<dump>" + out + "</dump>")
}

// runHits implements "hits <first> <last>" and "hits all".
func (s *session) runHits(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 1 && strings.EqualFold(fields[0], "all") {
		s.win = hitWindow{}
		return wrapResult("hits window cleared")
	}
	if len(fields) != 2 {
		return wrapError("hits: expected \"hits <first> <last>\" or \"hits all\"")
	}
	first, err1 := strconv.Atoi(fields[0])
	last, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return wrapError("hits: invalid range")
	}
	s.win = hitWindow{set: true, first: first, last: last}
	return wrapResult("hits window set")
}

// runRank implements "rank <path> <query>": reports where path falls in
// the query's ranked results, or "not found" if it isn't a hit.
func (s *session) runRank(ctx context.Context, rest string) string {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) != 2 {
		return wrapError("rank: expected \"rank <path> <query>\"")
	}
	path, text := fields[0], fields[1]

	q, err := query.Parse(text)
	if err != nil {
		return wrapError(err.Error())
	}
	results, err := s.idx.QueryAST(ctx, q)
	if err != nil {
		return wrapError(err.Error())
	}

	di, _, err := s.idx.DocIndex(path)
	if err != nil {
		return wrapResult(renderRank(-1))
	}
	rank := -1
	for i, r := range results {
		if r.Di == di {
			rank = i
			break
		}
	}
	return wrapResult(renderRank(rank))
}

const helpText = "<help>help, quit, query, nquery, dump, ndump, hits, docs, fields, rank</help>"

func splitCommand(line string) (cmd, rest string) {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

func firstWord(line string) string {
	cmd, _ := splitCommand(line)
	return cmd
}
