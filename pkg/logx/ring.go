package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultRingSize = 15

// Entry is one formatted event kept by the ring.
type Entry struct {
	At      time.Time
	Level   Level
	Context string // account label or component, may be empty
	Message string
	Extra   string // remaining key=value pairs
}

// Ring is a bounded zerolog sink that keeps the most recent events in memory.
//
// It is safe for concurrent use. Readers get copies.
type Ring struct {
	mu      sync.Mutex
	size    int
	entries []Entry
	seq     uint64
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{size: size}
}

// Resize changes the capacity, dropping the oldest entries if needed.
func (r *Ring) Resize(size int) {
	if size <= 0 {
		size = defaultRingSize
	}
	r.mu.Lock()
	r.size = size
	if len(r.entries) > size {
		r.entries = append([]Entry(nil), r.entries[len(r.entries)-size:]...)
	}
	r.mu.Unlock()
}

// Entries returns the buffered events, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Seq increases with every accepted event; cheap change detection for pollers.
func (r *Ring) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Ring) Write(p []byte) (int, error) {
	return r.WriteLevel(zerolog.InfoLevel, p)
}

func (r *Ring) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	e, ok := parseEntry(level, p)
	if !ok {
		return len(p), nil
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.size {
		r.entries = r.entries[len(r.entries)-r.size:]
	}
	r.seq++
	r.mu.Unlock()
	return len(p), nil
}

// parseEntry decodes a zerolog JSON line (best-effort).
func parseEntry(level zerolog.Level, p []byte) (Entry, bool) {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		s := strings.TrimSpace(string(p))
		if s == "" {
			return Entry{}, false
		}
		return Entry{At: time.Now(), Level: level, Message: s}, true
	}

	e := Entry{At: time.Now(), Level: level}
	if ts, ok := m[zerolog.TimestampFieldName].(string); ok {
		if t, err := time.Parse(zerolog.TimeFieldFormat, ts); err == nil {
			e.At = t
		}
	}
	e.Message, _ = m[zerolog.MessageFieldName].(string)
	if acc, ok := m[AccountFieldName].(string); ok {
		e.Context = acc
	} else if comp, ok := m["comp"].(string); ok {
		e.Context = strings.ToUpper(comp)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName,
			zerolog.CallerFieldName, AccountFieldName, "comp":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fmt.Sprint(m[k]))
	}
	e.Extra = strings.Join(parts, " ")
	return e, true
}
