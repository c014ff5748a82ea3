// Package history records the line selections made during a session.
//
// Each entry is tagged with a Kind telling whether the selection crossed a
// content boundary (a new shabad or bani was opened, or the current line was
// cleared) or moved within the content already on screen. Only boundary
// crossings are ever sent to clients: in-content moves would flood the
// resync view every client receives.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/dreamware/lectern/internal/content"
)

// Kind classifies a history entry.
type Kind int

const (
	// InContentMove is a selection within the content already active.
	InContentMove Kind = iota
	// ContentChange is a selection that crossed a content boundary.
	ContentChange
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case InContentMove:
		return "in-content-move"
	case ContentChange:
		return "content-change"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsTransition reports whether k marks a content boundary crossing.
func (k Kind) IsTransition() bool {
	return k == ContentChange
}

// KindOf maps the wire transition flag onto a Kind.
func KindOf(transition bool) Kind {
	if transition {
		return ContentChange
	}
	return InContentMove
}

// Entry is one recorded line selection. Line is nil when the selection
// cleared the current line.
type Entry struct {
	Line *content.Line
	Kind Kind
}

type wireEntry struct {
	Line       *content.Line `json:"line"`
	Transition bool          `json:"transition"`
}

// MarshalJSON encodes the entry as {"line": ..., "transition": bool}.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry{Line: e.Line, Transition: e.Kind.IsTransition()})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Line = w.Line
	e.Kind = KindOf(w.Transition)
	return nil
}

// Log is an ordered, append-only sequence of entries.
//
// A Log is not safe for concurrent use; the coordinator owns it and only
// touches it while holding its session lock.
type Log struct {
	entries []Entry
	limit   int // 0 means unbounded
}

// New creates a Log. When limit is positive the log keeps at most limit
// entries, dropping the oldest first.
func New(limit int) *Log {
	if limit < 0 {
		limit = 0
	}
	return &Log{limit: limit}
}

// Append records a selection. line may be nil; the value is copied.
func (l *Log) Append(line *content.Line, kind Kind) {
	var stored *content.Line
	if line != nil {
		cp := *line
		stored = &cp
	}
	l.entries = append(l.entries, Entry{Line: stored, Kind: kind})
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]Entry(nil), l.entries[len(l.entries)-l.limit:]...)
	}
}

// TransitionsOnly returns the ContentChange entries in append order.
// The result is never nil so it encodes as an empty JSON array.
func (l *Log) TransitionsOnly() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Kind.IsTransition() {
			out = append(out, e.clone())
		}
	}
	return out
}

// Entries returns a copy of every entry in append order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Reset removes every entry.
func (l *Log) Reset() {
	l.entries = nil
}

func (e Entry) clone() Entry {
	if e.Line != nil {
		cp := *e.Line
		e.Line = &cp
	}
	return e
}
