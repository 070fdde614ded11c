// Package labware provides the static labware catalog offered by the deck editor.
package labware

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/labdeck/internal/protocol"
)

var (
	ErrUnknownType       = errors.New("labware: unknown type")
	ErrInvalidDefinition = errors.New("labware: invalid definition")
)

//go:embed definitions.json
var builtinDefinitions []byte

// Definition is one catalog entry.
type Definition struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Category    string `json:"category"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
}

// Placed returns the document form of d for slot.
func (d Definition) Placed(slot protocol.Slot) protocol.Labware {
	return protocol.Labware{
		Type:        d.Type,
		DisplayName: d.DisplayName,
		Category:    d.Category,
		Slot:        slot,
	}
}

// Wells lists well ids row-major: A1, A2, ... for the definition's footprint.
func (d Definition) Wells() []string {
	out := make([]string, 0, d.Rows*d.Columns)
	for r := 0; r < d.Rows; r++ {
		for c := 1; c <= d.Columns; c++ {
			out = append(out, rowName(r)+strconv.Itoa(c))
		}
	}
	return out
}

// HasWell reports whether well lies inside the footprint.
func (d Definition) HasWell(well string) bool {
	if len(well) < 2 {
		return false
	}
	row := int(well[0] - 'A')
	col, err := strconv.Atoi(well[1:])
	if err != nil || strconv.Itoa(col) != well[1:] {
		return false
	}
	return row >= 0 && row < d.Rows && col >= 1 && col <= d.Columns
}

func rowName(r int) string {
	return string(rune('A' + r))
}

// Catalog is a read-only lookup table of definitions.
type Catalog struct {
	defs   []Definition
	byType map[string]Definition
}

// Builtin loads the embedded catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtinDefinitions)
}

// Parse builds a catalog from a JSON array of definitions.
func Parse(data []byte) (*Catalog, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("labware: parse catalog: %w", err)
	}
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		byType: make(map[string]Definition, len(defs)),
	}
	for i, d := range defs {
		if strings.TrimSpace(d.Type) == "" || strings.TrimSpace(d.Category) == "" {
			return nil, fmt.Errorf("%w: entry %d missing type or category", ErrInvalidDefinition, i)
		}
		if d.Rows <= 0 || d.Columns <= 0 || d.Rows > 26 {
			return nil, fmt.Errorf("%w: %s has footprint %dx%d", ErrInvalidDefinition, d.Type, d.Rows, d.Columns)
		}
		if _, dup := c.byType[d.Type]; dup {
			return nil, fmt.Errorf("%w: duplicate type %s", ErrInvalidDefinition, d.Type)
		}
		c.byType[d.Type] = d
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// All returns every definition in file order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) ByCategory(category string) []Definition {
	out := make([]Definition, 0)
	for _, d := range c.defs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, d := range c.defs {
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		out = append(out, d.Category)
	}
	return out
}

func (c *Catalog) Lookup(typ string) (Definition, error) {
	d, ok := c.byType[typ]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return d, nil
}

// Types returns every known type sorted.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.byType))
	for t := range c.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
