package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

type StepType string

const (
	StepDeckSetup StepType = "initial_deck_setup"
	StepTransfer  StepType = "transfer"
	StepPause     StepType = "pause"
)

// DeckSetupID is the fixed id of the synthetic leading setup step.
const DeckSetupID = "deck_setup"

// Title is the default display title for a freshly added step of type t.
func (t StepType) Title() string {
	switch t {
	case StepTransfer:
		return "Transfer"
	case StepPause:
		return "Pause"
	case StepDeckSetup:
		return "Deck Setup"
	default:
		return string(t)
	}
}

type Step struct {
	ID          string   `json:"id"`
	Type        StepType `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Params      Params   `json:"params"`
}

// WellSelection names a set of wells on the labware in one slot.
type WellSelection struct {
	LabwareID Slot     `json:"labwareId"`
	Wells     []string `json:"wells"`
}

type TransferParams struct {
	Pipette Mount         `json:"pipette"`
	Volume  float64       `json:"volume"`
	Source  WellSelection `json:"source"`
	Dest    WellSelection `json:"dest"`
}

type PauseParams struct {
	Message string `json:"message"`
}

// Params is the type-dependent step payload. At most one field is set; the
// zero value serializes as {}. Raw keeps payloads of step types this package
// does not model.
type Params struct {
	Transfer *TransferParams
	Pause    *PauseParams
	Raw      json.RawMessage
}

func (p Params) IsZero() bool {
	return p.Transfer == nil && p.Pause == nil && len(p.Raw) == 0
}

// Clone returns a copy sharing no mutable state with p.
func (p Params) Clone() Params {
	var out Params
	if p.Transfer != nil {
		t := *p.Transfer
		t.Source.Wells = slices.Clone(t.Source.Wells)
		t.Dest.Wells = slices.Clone(t.Dest.Wells)
		out.Transfer = &t
	}
	if p.Pause != nil {
		pp := *p.Pause
		out.Pause = &pp
	}
	if len(p.Raw) > 0 {
		out.Raw = bytes.Clone(p.Raw)
	}
	return out
}

func (p Params) MarshalJSON() ([]byte, error) {
	switch {
	case p.Transfer != nil:
		return json.Marshal(p.Transfer)
	case p.Pause != nil:
		return json.Marshal(p.Pause)
	case len(p.Raw) > 0:
		return p.Raw, nil
	default:
		return []byte("{}"), nil
	}
}

// DecodeParams decodes raw as the params payload of a step of type t.
func DecodeParams(t StepType, raw []byte) (Params, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return Params{}, nil
	}
	switch t {
	case StepTransfer:
		var tp TransferParams
		if err := json.Unmarshal(trimmed, &tp); err != nil {
			return Params{}, fmt.Errorf("decode transfer params: %w", err)
		}
		tp.Source.Wells = NormalizeWells(tp.Source.Wells)
		tp.Dest.Wells = NormalizeWells(tp.Dest.Wells)
		return Params{Transfer: &tp}, nil
	case StepPause:
		var pp PauseParams
		if err := json.Unmarshal(trimmed, &pp); err != nil {
			return Params{}, fmt.Errorf("decode pause params: %w", err)
		}
		return Params{Pause: &pp}, nil
	default:
		if !json.Valid(trimmed) {
			return Params{}, fmt.Errorf("decode %s params: invalid json", t)
		}
		return Params{Raw: bytes.Clone(trimmed)}, nil
	}
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          string          `json:"id"`
		Type        StepType        `json:"type"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Params      json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	params, err := DecodeParams(wire.Type, wire.Params)
	if err != nil {
		return err
	}
	*s = Step{
		ID:          wire.ID,
		Type:        wire.Type,
		Title:       wire.Title,
		Description: wire.Description,
		Params:      params,
	}
	return nil
}

// NormalizeWells drops empty and repeated well ids, keeping first-seen order.
func NormalizeWells(wells []string) []string {
	if wells == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(wells))
	out := make([]string, 0, len(wells))
	for _, w := range wells {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
