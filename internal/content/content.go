package content

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a shabad, bani, or ordinal does not resolve
// to anything in the repository.
var ErrNotFound = errors.New("content not found")

// ErrEmptyCatalog is returned by ShabadOrderRange when the repository holds
// no shabads, so there is no range to clamp into.
var ErrEmptyCatalog = errors.New("content catalog is empty")

// Line is one displayable unit of content text.
//
// OrderID is the line's position within the content it was fetched as part
// of. Lines of a single Shabad or Bani have strictly increasing OrderIDs.
type Line struct {
	// ID is the stable identifier of the line across every content that
	// includes it.
	ID string `json:"id" yaml:"id"`

	// OrderID is the ordinal position used to resolve "go to line N" requests.
	OrderID int `json:"orderId" yaml:"orderId"`

	// Text is the display text.
	Text string `json:"text" yaml:"text"`

	// ShabadID points back to the owning shabad for lines that appear inside
	// a bani. Empty for lines fetched as part of their own shabad.
	ShabadID string `json:"shabadId,omitempty" yaml:"shabadId,omitempty"`
}

// Shabad is a passage of lines selected as one unit. Shabads are themselves
// ordered by OrderID within the repository.
type Shabad struct {
	ID      string `json:"id" yaml:"id"`
	OrderID int    `json:"orderId" yaml:"orderId"`
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
	Lines   []Line `json:"lines" yaml:"lines"`
}

// Bani is a composed sequence of lines, typically spanning several shabads.
type Bani struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Lines []Line `json:"lines" yaml:"lines"`
}

// Repository resolves content for the session coordinator.
// Implementations must be safe for concurrent use and must honor ctx
// cancellation, since the coordinator bounds every lookup with a timeout.
type Repository interface {
	// ShabadByID returns the shabad with the given id, or ErrNotFound.
	ShabadByID(ctx context.Context, id string) (Shabad, error)

	// ShabadByOrderID returns the shabad at the given ordinal, or ErrNotFound.
	ShabadByOrderID(ctx context.Context, orderID int) (Shabad, error)

	// BaniLines returns the ordered lines of a bani, or ErrNotFound.
	BaniLines(ctx context.Context, id string) ([]Line, error)

	// ShabadOrderRange returns the inclusive [min, max] ordinal range of
	// shabads, or ErrEmptyCatalog when there are none.
	ShabadOrderRange(ctx context.Context) (min, max int, err error)
}

// Clamp bounds n into [min, max].
func Clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// OrderRange returns the smallest and largest OrderID in lines.
// ok is false when lines is empty.
func OrderRange(lines []Line) (min, max int, ok bool) {
	if len(lines) == 0 {
		return 0, 0, false
	}
	min, max = lines[0].OrderID, lines[0].OrderID
	for _, l := range lines[1:] {
		if l.OrderID < min {
			min = l.OrderID
		}
		if l.OrderID > max {
			max = l.OrderID
		}
	}
	return min, max, true
}

// LineAtOrder returns the line whose OrderID equals orderID.
func LineAtOrder(lines []Line, orderID int) (Line, bool) {
	for _, l := range lines {
		if l.OrderID == orderID {
			return l, true
		}
	}
	return Line{}, false
}

// FindLine returns the line with the given id.
func FindLine(lines []Line, id string) (Line, bool) {
	for _, l := range lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// CloneLines returns a copy of lines so callers cannot alias repository state.
func CloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// Clone returns a deep copy of the shabad.
func (s Shabad) Clone() Shabad {
	s.Lines = CloneLines(s.Lines)
	return s
}

// Clone returns a deep copy of the bani.
func (b Bani) Clone() Bani {
	b.Lines = CloneLines(b.Lines)
	return b
}
