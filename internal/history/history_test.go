package history

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dreamware/lectern/internal/content"
)

func line(id string, order int) *content.Line {
	return &content.Line{ID: id, OrderID: order}
}

func TestKind(t *testing.T) {
	assert.True(t, ContentChange.IsTransition())
	assert.False(t, InContentMove.IsTransition())
	assert.False(t, Kind(42).IsTransition())
	assert.Equal(t, ContentChange, KindOf(true))
	assert.Equal(t, InContentMove, KindOf(false))
	assert.Equal(t, "content-change", ContentChange.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestAppendAndTransitionsOnly(t *testing.T) {
	log := New(0)
	log.Append(line("l1", 0), ContentChange)
	log.Append(line("l2", 1), InContentMove)
	log.Append(nil, ContentChange)
	log.Append(line("l3", 2), ContentChange)

	assert.Equal(t, 4, log.Len())

	got := log.TransitionsOnly()
	require.Len(t, got, 3)
	assert.Equal(t, "l1", got[0].Line.ID)
	assert.Nil(t, got[1].Line)
	assert.Equal(t, "l3", got[2].Line.ID)
}

func TestAppendCopiesLine(t *testing.T) {
	log := New(0)
	l := line("l1", 0)
	log.Append(l, ContentChange)
	l.ID = "mutated"

	assert.Equal(t, "l1", log.Entries()[0].Line.ID)

	out := log.TransitionsOnly()
	out[0].Line.ID = "changed"
	assert.Equal(t, "l1", log.TransitionsOnly()[0].Line.ID)
}

func TestResetThenAppend(t *testing.T) {
	log := New(0)
	log.Append(line("old", 0), ContentChange)
	log.Append(line("old2", 1), ContentChange)
	log.Reset()

	assert.Empty(t, log.TransitionsOnly())
	assert.NotNil(t, log.TransitionsOnly(), "empty view must encode as []")

	log.Append(line("new", 0), ContentChange)
	got := log.TransitionsOnly()
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Line.ID)
}

func TestLimitDropsOldest(t *testing.T) {
	log := New(3)
	for i := 0; i < 5; i++ {
		log.Append(line(fmt.Sprintf("l%d", i), i), ContentChange)
	}
	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "l2", entries[0].Line.ID)
	assert.Equal(t, "l4", entries[2].Line.ID)
}

func TestEntryJSON(t *testing.T) {
	raw, err := json.Marshal([]Entry{
		{Line: line("l1", 0), Kind: ContentChange},
		{Line: nil, Kind: InContentMove},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"line": {"id": "l1", "orderId": 0, "text": ""}, "transition": true},
		{"line": null, "transition": false}
	]`, string(raw))

	var back []Entry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ContentChange, back[0].Kind)
	assert.Nil(t, back[1].Line)
}

// TransitionsOnly is always an order-preserving subsequence of the appended
// entries and never contains an in-content move.
func TestTransitionsOnlyIsSubsequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		log := New(0)
		n := rapid.IntRange(0, 50).Draw(t, "n")
		var want []string
		for i := 0; i < n; i++ {
			transition := rapid.Bool().Draw(t, "transition")
			id := fmt.Sprintf("l%d", i)
			log.Append(line(id, i), KindOf(transition))
			if transition {
				want = append(want, id)
			}
		}

		got := log.TransitionsOnly()
		if len(got) != len(want) {
			t.Fatalf("got %d transitions, want %d", len(got), len(want))
		}
		for i, e := range got {
			if !e.Kind.IsTransition() {
				t.Fatalf("entry %d is not a transition", i)
			}
			if e.Line.ID != want[i] {
				t.Fatalf("entry %d = %s, want %s", i, e.Line.ID, want[i])
			}
		}
	})
}
