package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk description of every shabad and bani the
// coordinator can display.
//
// Example:
//
//	shabads:
//	  - id: DMP
//	    orderId: 1
//	    lines:
//	      - {id: l1, orderId: 0, text: "..."}
//	      - {id: l2, orderId: 1, text: "..."}
//	banis:
//	  - id: japji
//	    name: Japji Sahib
//	    lineIds: [l1, l2]
type Catalog struct {
	Shabads []Shabad      `yaml:"shabads"`
	Banis   []BaniListing `yaml:"banis"`
}

// BaniListing declares a bani either with inline lines or as references to
// lines of shabads in the same catalog. Exactly one of Lines and LineIDs may
// be set.
type BaniListing struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name,omitempty"`
	Lines   []Line   `yaml:"lines,omitempty"`
	LineIDs []string `yaml:"lineIds,omitempty"`
}

// ResolvedCatalog is a validated catalog whose bani references have been
// replaced by the lines they point to.
type ResolvedCatalog struct {
	Shabads []Shabad
	Banis   []Bani
}

// ParseCatalog decodes a YAML catalog. Unknown fields are rejected so typos in
// hand-edited files surface immediately.
func ParseCatalog(r io.Reader) (Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return cat, nil
}

// LoadCatalogFile reads and decodes the YAML catalog at path.
func LoadCatalogFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	cat, err := ParseCatalog(f)
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// Resolve validates the catalog and expands bani line references.
//
// Rules:
//   - shabad ids and order ids are unique and ids non-empty
//   - line ids are non-empty and unique across all shabads
//   - line order ids strictly increase within each shabad and inline bani
//   - every bani line reference resolves to a shabad line
//
// Referenced bani lines are renumbered 0..n-1 in bani order and carry the
// id of the shabad they came from.
func (c Catalog) Resolve() (ResolvedCatalog, error) {
	out := ResolvedCatalog{
		Shabads: make([]Shabad, 0, len(c.Shabads)),
		Banis:   make([]Bani, 0, len(c.Banis)),
	}

	seenShabad := make(map[string]bool, len(c.Shabads))
	seenOrder := make(map[int]string, len(c.Shabads))
	lineIndex := make(map[string]Line)

	for _, s := range c.Shabads {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return ResolvedCatalog{}, errors.New("shabad id cannot be empty")
		}
		if seenShabad[id] {
			return ResolvedCatalog{}, fmt.Errorf("duplicate shabad id %q", id)
		}
		if other, ok := seenOrder[s.OrderID]; ok {
			return ResolvedCatalog{}, fmt.Errorf("shabads %q and %q share order id %d", other, id, s.OrderID)
		}
		seenShabad[id] = true
		seenOrder[s.OrderID] = id

		if err := checkLines(s.Lines); err != nil {
			return ResolvedCatalog{}, fmt.Errorf("shabad %q: %w", id, err)
		}
		for _, l := range s.Lines {
			if _, dup := lineIndex[l.ID]; dup {
				return ResolvedCatalog{}, fmt.Errorf("shabad %q: line id %q already used", id, l.ID)
			}
			owned := l
			owned.ShabadID = id
			lineIndex[l.ID] = owned
		}

		resolved := s.Clone()
		resolved.ID = id
		out.Shabads = append(out.Shabads, resolved)
	}

	seenBani := make(map[string]bool, len(c.Banis))
	for _, b := range c.Banis {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return ResolvedCatalog{}, errors.New("bani id cannot be empty")
		}
		if seenBani[id] {
			return ResolvedCatalog{}, fmt.Errorf("duplicate bani id %q", id)
		}
		seenBani[id] = true

		if len(b.Lines) > 0 && len(b.LineIDs) > 0 {
			return ResolvedCatalog{}, fmt.Errorf("bani %q: lines and lineIds are mutually exclusive", id)
		}

		bani := Bani{ID: id, Name: b.Name}
		if len(b.LineIDs) > 0 {
			bani.Lines = make([]Line, 0, len(b.LineIDs))
			for i, ref := range b.LineIDs {
				l, ok := lineIndex[ref]
				if !ok {
					return ResolvedCatalog{}, fmt.Errorf("bani %q: unknown line %q", id, ref)
				}
				l.OrderID = i
				bani.Lines = append(bani.Lines, l)
			}
		} else {
			if err := checkLines(b.Lines); err != nil {
				return ResolvedCatalog{}, fmt.Errorf("bani %q: %w", id, err)
			}
			bani.Lines = CloneLines(b.Lines)
		}
		out.Banis = append(out.Banis, bani)
	}

	return out, nil
}

func checkLines(lines []Line) error {
	seen := make(map[string]bool, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("line %d has an empty id", i)
		}
		if seen[l.ID] {
			return fmt.Errorf("duplicate line id %q", l.ID)
		}
		seen[l.ID] = true
		if i > 0 && l.OrderID <= lines[i-1].OrderID {
			return fmt.Errorf("line %q order id %d does not increase", l.ID, l.OrderID)
		}
	}
	return nil
}
