// Package state owns Protocol Document transitions.
//
// Every Manager operation takes a Document and returns the next Document.
// Operations never mutate their input, never block, and never fail: a stale
// reference (unknown step, liquid, or slot) degrades to a no-op. Untouched
// maps and slices are carried into the result by reference, so callers must
// treat every Document they hold as read-only.
package state

import (
	"maps"
	"slices"
	"strings"

	"github.com/danmuck/labdeck/internal/protocol"
	"github.com/oklog/ulid/v2"
)

const newStepDescription = "New step"

// IDSource generates identifiers that are never reused within a process.
type IDSource interface {
	NewID(prefix string) string
}

type ulidSource struct{}

func (ulidSource) NewID(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}

// Manager is the sole mutator of Protocol Documents.
type Manager struct {
	ids IDSource
}

func NewManager() *Manager {
	return NewManagerWithIDs(nil)
}

func NewManagerWithIDs(ids IDSource) *Manager {
	if ids == nil {
		ids = ulidSource{}
	}
	return &Manager{ids: ids}
}

// StepUpdate holds the fields UpdateStep merges; nil fields are left alone.
// It has no ID field, so a step id never changes.
type StepUpdate struct {
	Type        *protocol.StepType
	Title       *string
	Description *string
	Params      *protocol.Params
}

// LiquidUpdate holds the fields UpdateLiquid merges; nil fields are left alone.
type LiquidUpdate struct {
	Name  *string
	Color *string
}

// AddStep appends a new step of stepType. Unrecognized types are stored as-is.
func (m *Manager) AddStep(doc protocol.Document, stepType protocol.StepType) protocol.Document {
	step := protocol.Step{
		ID:          m.ids.NewID("step"),
		Type:        stepType,
		Title:       stepType.Title(),
		Description: newStepDescription,
	}
	next := doc
	next.Steps = append(slices.Clip(doc.Steps), step)
	return next
}

// UpdateStep merges u into the step with id.
func (m *Manager) UpdateStep(doc protocol.Document, id string, u StepUpdate) protocol.Document {
	_, idx, ok := doc.StepByID(id)
	if !ok {
		return doc
	}
	step := doc.Steps[idx]
	if u.Type != nil {
		step.Type = *u.Type
	}
	if u.Title != nil {
		step.Title = *u.Title
	}
	if u.Description != nil {
		step.Description = *u.Description
	}
	if u.Params != nil {
		step.Params = u.Params.Clone()
	}

	next := doc
	next.Steps = slices.Clone(doc.Steps)
	next.Steps[idx] = step
	return next
}

// DeleteStep removes the step with id. The deck setup step is protected.
// Nothing that referenced the step is cleaned up.
func (m *Manager) DeleteStep(doc protocol.Document, id string) protocol.Document {
	if id == protocol.DeckSetupID {
		return doc
	}
	_, idx, ok := doc.StepByID(id)
	if !ok {
		return doc
	}
	next := doc
	next.Steps = slices.Delete(slices.Clone(doc.Steps), idx, idx+1)
	return next
}

// EnsureDeckSetup prepends the synthetic deck setup step if it is missing.
func (m *Manager) EnsureDeckSetup(doc protocol.Document) protocol.Document {
	if _, _, ok := doc.StepByID(protocol.DeckSetupID); ok {
		return doc
	}
	setup := protocol.Step{
		ID:          protocol.DeckSetupID,
		Type:        protocol.StepDeckSetup,
		Title:       protocol.StepDeckSetup.Title(),
		Description: "Configure initial labware layout",
	}
	next := doc
	next.Steps = make([]protocol.Step, 0, len(doc.Steps)+1)
	next.Steps = append(next.Steps, setup)
	next.Steps = append(next.Steps, doc.Steps...)
	return next
}

// AddLabware places def in slot, replacing any previous occupant.
func (m *Manager) AddLabware(doc protocol.Document, slot protocol.Slot, def protocol.Labware) protocol.Document {
	def.Slot = slot
	next := doc
	next.Labware = cloneMap(doc.Labware)
	next.Labware[slot] = def
	return next
}

// RemoveLabware empties slot. Liquid assignments for the slot are kept.
func (m *Manager) RemoveLabware(doc protocol.Document, slot protocol.Slot) protocol.Document {
	if _, ok := doc.Labware[slot]; !ok {
		return doc
	}
	next := doc
	next.Labware = cloneMap(doc.Labware)
	delete(next.Labware, slot)
	return next
}

// AddLiquid stores liquid, generating an id when it has none.
func (m *Manager) AddLiquid(doc protocol.Document, liquid protocol.Liquid) protocol.Document {
	if strings.TrimSpace(liquid.ID) == "" {
		liquid.ID = m.ids.NewID("liquid")
	}
	next := doc
	next.Liquids = cloneMap(doc.Liquids)
	next.Liquids[liquid.ID] = liquid
	return next
}

// UpdateLiquid merges u into the liquid with id. Unknown ids are ignored
// rather than creating a partial record.
func (m *Manager) UpdateLiquid(doc protocol.Document, id string, u LiquidUpdate) protocol.Document {
	liquid, ok := doc.Liquids[id]
	if !ok {
		return doc
	}
	if u.Name != nil {
		liquid.Name = *u.Name
	}
	if u.Color != nil {
		liquid.Color = *u.Color
	}
	next := doc
	next.Liquids = cloneMap(doc.Liquids)
	next.Liquids[id] = liquid
	return next
}

// DeleteLiquid removes the liquid with id. Wells that reference it keep
// their (now orphaned) assignment.
func (m *Manager) DeleteLiquid(doc protocol.Document, id string) protocol.Document {
	if _, ok := doc.Liquids[id]; !ok {
		return doc
	}
	next := doc
	next.Liquids = cloneMap(doc.Liquids)
	delete(next.Liquids, id)
	return next
}

// AssignLiquid sets every well in wells on slot to {liquidID, volume}. An
// empty liquidID clears those wells instead.
func (m *Manager) AssignLiquid(doc protocol.Document, slot protocol.Slot, wells []string, liquidID string, volume float64) protocol.Document {
	wellMap := cloneMap(doc.LiquidState[slot])
	for _, well := range wells {
		if liquidID == "" {
			delete(wellMap, well)
			continue
		}
		wellMap[well] = protocol.WellLiquid{LiquidID: liquidID, Volume: volume}
	}

	next := doc
	next.LiquidState = maps.Clone(doc.LiquidState)
	if next.LiquidState == nil {
		next.LiquidState = make(map[protocol.Slot]map[string]protocol.WellLiquid, 1)
	}
	next.LiquidState[slot] = wellMap
	return next
}

// ClearWells removes any liquid assignment from wells on slot.
func (m *Manager) ClearWells(doc protocol.Document, slot protocol.Slot, wells []string) protocol.Document {
	return m.AssignLiquid(doc, slot, wells, "", 0)
}

// cloneMap is maps.Clone that never returns nil.
func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in)+1)
	maps.Copy(out, in)
	return out
}
