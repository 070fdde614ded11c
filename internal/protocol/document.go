package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrInvalidSlot  = errors.New("protocol: invalid deck slot")
	ErrInvalidMount = errors.New("protocol: invalid pipette mount")
)

const DefaultName = "Untitled Protocol"

// Slot identifies one fixed deck position ("1".."12").
type Slot string

// SlotCount is the number of deck positions.
const SlotCount = 12

// Slots returns every deck slot in deck order.
func Slots() []Slot {
	out := make([]Slot, 0, SlotCount)
	for i := 1; i <= SlotCount; i++ {
		out = append(out, Slot(strconv.Itoa(i)))
	}
	return out
}

func (s Slot) Valid() bool {
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return false
	}
	return n >= 1 && n <= SlotCount && strconv.Itoa(n) == string(s)
}

// ParseSlot validates raw as a deck slot.
func ParseSlot(raw string) (Slot, error) {
	s := Slot(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
	}
	return s, nil
}

type Mount string

const (
	MountLeft  Mount = "left"
	MountRight Mount = "right"
)

func (m Mount) Valid() bool {
	return m == MountLeft || m == MountRight
}

type ChannelMode string

const (
	ChannelSingle ChannelMode = "single"
	ChannelMulti  ChannelMode = "multi"
)

type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Author      string `json:"author"`
	// Created is Unix milliseconds, set once at creation.
	Created int64 `json:"created"`
}

func (m Metadata) CreatedAt() time.Time {
	return time.UnixMilli(m.Created)
}

type Pipette struct {
	Name        string      `json:"name"`
	ChannelMode ChannelMode `json:"channelMode"`
	Mount       Mount       `json:"mount"`
}

// Pipettes always carries both mounts; nil is an empty mount.
type Pipettes struct {
	Left  *Pipette `json:"left"`
	Right *Pipette `json:"right"`
}

func (p Pipettes) At(m Mount) *Pipette {
	switch m {
	case MountLeft:
		return p.Left
	case MountRight:
		return p.Right
	default:
		return nil
	}
}

type Labware struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Category    string `json:"category"`
	Slot        Slot   `json:"slot"`
}

type Liquid struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type WellLiquid struct {
	LiquidID string  `json:"liquidId"`
	Volume   float64 `json:"volume"`
}

// Document is the full in-memory protocol for one editing session.
type Document struct {
	Metadata    Metadata                       `json:"metadata"`
	Pipettes    Pipettes                       `json:"pipettes"`
	Labware     map[Slot]Labware               `json:"labware"`
	Liquids     map[string]Liquid              `json:"liquids"`
	LiquidState map[Slot]map[string]WellLiquid `json:"liquidState"`
	Steps       []Step                         `json:"steps"`
}

// Initial returns the empty document used when no wizard answers exist.
func Initial(now time.Time) Document {
	return Document{
		Metadata: Metadata{
			Name:    DefaultName,
			Created: now.UnixMilli(),
		},
		Pipettes: Pipettes{
			Left: &Pipette{Name: "p300_single", ChannelMode: ChannelSingle, Mount: MountLeft},
		},
		Labware:     map[Slot]Labware{},
		Liquids:     map[string]Liquid{},
		LiquidState: map[Slot]map[string]WellLiquid{},
		Steps:       []Step{},
	}
}

// StepByID returns the step with id and its index.
func (d Document) StepByID(id string) (Step, int, bool) {
	for i, s := range d.Steps {
		if s.ID == id {
			return s, i, true
		}
	}
	return Step{}, -1, false
}
