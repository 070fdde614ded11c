package protocol

import (
	"fmt"
	"sort"
)

type IssueKind string

const (
	IssueInvalidSlot      IssueKind = "invalid_slot"
	IssueSlotMismatch     IssueKind = "slot_mismatch"
	IssueEmptySlotLiquids IssueKind = "empty_slot_liquids"
	IssueOrphanLiquid     IssueKind = "orphan_liquid"
	IssueMissingPipette   IssueKind = "missing_pipette"
	IssueMissingLabware   IssueKind = "missing_labware"
	IssueBadVolume        IssueKind = "bad_volume"
	IssueDeckSetupOrder   IssueKind = "deck_setup_order"
	IssueDuplicateStepID  IssueKind = "duplicate_step_id"
)

// Issue is one stale or inconsistent reference found in a document.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Slot    Slot      `json:"slot,omitempty"`
	Well    string    `json:"well,omitempty"`
	StepID  string    `json:"stepId,omitempty"`
	Message string    `json:"message"`
}

// Validate reports dangling references. Deletes do not cascade, so readers
// (rendering, export, execution) use this instead of trusting references.
// The result is sorted for stable output.
func Validate(doc Document) []Issue {
	var issues []Issue
	add := func(i Issue) { issues = append(issues, i) }

	for key, lw := range doc.Labware {
		if !key.Valid() {
			add(Issue{Kind: IssueInvalidSlot, Slot: key, Message: fmt.Sprintf("labware in unknown slot %q", key)})
		}
		if lw.Slot != key {
			add(Issue{Kind: IssueSlotMismatch, Slot: key, Message: fmt.Sprintf("labware keyed %q claims slot %q", key, lw.Slot)})
		}
	}

	for slot, wells := range doc.LiquidState {
		if _, ok := doc.Labware[slot]; !ok && len(wells) > 0 {
			add(Issue{Kind: IssueEmptySlotLiquids, Slot: slot, Message: fmt.Sprintf("%d liquid assignment(s) on empty slot %q", len(wells), slot)})
		}
		for well, wl := range wells {
			if _, ok := doc.Liquids[wl.LiquidID]; !ok {
				add(Issue{Kind: IssueOrphanLiquid, Slot: slot, Well: well, Message: fmt.Sprintf("unknown liquid %q", wl.LiquidID)})
			}
		}
	}

	seen := make(map[string]struct{}, len(doc.Steps))
	for i, step := range doc.Steps {
		if _, dup := seen[step.ID]; dup {
			add(Issue{Kind: IssueDuplicateStepID, StepID: step.ID, Message: "step id used more than once"})
		}
		seen[step.ID] = struct{}{}
		if (step.ID == DeckSetupID || step.Type == StepDeckSetup) && i != 0 {
			add(Issue{Kind: IssueDeckSetupOrder, StepID: step.ID, Message: fmt.Sprintf("deck setup step at index %d", i)})
		}
		if tp := step.Params.Transfer; tp != nil {
			issues = append(issues, validateTransfer(doc, step.ID, *tp)...)
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		if a.StepID != b.StepID {
			return a.StepID < b.StepID
		}
		return a.Well < b.Well
	})
	return issues
}

func validateTransfer(doc Document, stepID string, tp TransferParams) []Issue {
	var out []Issue
	if !tp.Pipette.Valid() || doc.Pipettes.At(tp.Pipette) == nil {
		out = append(out, Issue{Kind: IssueMissingPipette, StepID: stepID, Message: fmt.Sprintf("no pipette on mount %q", tp.Pipette)})
	}
	if tp.Volume <= 0 {
		out = append(out, Issue{Kind: IssueBadVolume, StepID: stepID, Message: fmt.Sprintf("volume %v must be positive", tp.Volume)})
	}
	for _, sel := range []WellSelection{tp.Source, tp.Dest} {
		if sel.LabwareID == "" {
			continue
		}
		if _, ok := doc.Labware[sel.LabwareID]; !ok {
			out = append(out, Issue{Kind: IssueMissingLabware, Slot: sel.LabwareID, StepID: stepID, Message: fmt.Sprintf("slot %q is empty", sel.LabwareID)})
		}
	}
	return out
}
