package dash

import (
	"fmt"
	"sort"
	"time"

	wsmarshaller "github.com/arcfront/shellbus/internal/handler/marshaller/ws"
)

const defaultKeepLines = 200

// state is the dashboard's view model: a rolling window of event lines plus
// per-type counters. The UI loop owns it; nothing here is goroutine-safe.
type state struct {
	keep     int
	total    int
	replayed int
	byType   map[string]int
	lines    []string
	started  time.Time
}

func newState(keep int) *state {
	if keep <= 0 {
		keep = defaultKeepLines
	}
	return &state{
		keep:    keep,
		byType:  make(map[string]int),
		started: time.Now(),
	}
}

// apply folds one frame into the model.
func (s *state) apply(f wsmarshaller.WSEvent) {
	s.total++
	s.byType[f.Event]++

	line := fmt.Sprintf("%s  %-22s src=%s",
		time.UnixMilli(f.SentAt).Format("15:04:05.000"),
		f.Event,
		orDash(f.Source),
	)
	if f.Kind == wsmarshaller.KindReplay {
		s.replayed++
		line = fmt.Sprintf("[%s](fg:yellow)", line)
	}

	s.lines = append(s.lines, line)
	if len(s.lines) > s.keep {
		s.lines = s.lines[len(s.lines)-s.keep:]
	}
}

// rows renders the event window newest first.
func (s *state) rows() []string {
	out := make([]string, len(s.lines))
	for i, line := range s.lines {
		out[len(out)-1-i] = line
	}
	return out
}

// counterRows renders per-type counts, busiest first, ties alphabetical.
func (s *state) counterRows() [][]string {
	type kv struct {
		typ string
		n   int
	}
	counts := make([]kv, 0, len(s.byType))
	for typ, n := range s.byType {
		counts = append(counts, kv{typ, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].typ < counts[j].typ
	})

	rows := [][]string{{"TYPE", "COUNT"}}
	for _, c := range counts {
		rows = append(rows, []string{c.typ, fmt.Sprintf("%d", c.n)})
	}
	return rows
}

// summary is the header line above the stream.
func (s *state) summary(addr string, connected bool) string {
	status := "LIVE"
	if !connected {
		status = "DISCONNECTED"
	}
	return fmt.Sprintf(" %s  [%s]  events=%d  replayed=%d  uptime=%s  (q to quit)",
		addr, status, s.total, s.replayed, time.Since(s.started).Truncate(time.Second))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
