package kiosk

import (
	"net/http"
	"testing"

	"github.com/danmuck/labdeck/internal/protocol"
	"github.com/danmuck/labdeck/internal/testutil/testlog"
)

type protocolBody struct {
	Protocol protocol.Document `json:"protocol"`
}

func TestProtocolEditingFlow(t *testing.T) {
	testlog.Start(t)
	app := newTestApp(t, newFakeBackend())

	initial := decode[protocol.Document](t, do(t, app, http.MethodGet, "/api/protocol", nil))
	if initial.Metadata.Name != protocol.DefaultName || len(initial.Steps) != 0 {
		t.Fatalf("unexpected initial document: %+v", initial)
	}

	if rr := do(t, app, http.MethodPost, "/api/protocol", map[string]string{"name": " "}); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank wizard name should be rejected, got %d", rr.Code)
	}
	rr := do(t, app, http.MethodPost, "/api/protocol", map[string]string{
		"name":            "Serial dilution",
		"pipetteVol":      "p20",
		"pipetteChannels": "single",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start protocol: %d %s", rr.Code, rr.Body.String())
	}
	doc := decode[protocol.Document](t, rr)
	if doc.Metadata.Name != "Serial dilution" || len(doc.Steps) != 1 || doc.Steps[0].ID != protocol.DeckSetupID {
		t.Fatalf("unexpected started document: %+v", doc)
	}

	// Labware placement.
	rr = do(t, app, http.MethodPut, "/api/protocol/labware/1", map[string]string{"type": "corning_96_wellplate_360ul_flat"})
	if rr.Code != http.StatusOK {
		t.Fatalf("put labware: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodPut, "/api/protocol/labware/2", map[string]string{"type": "nest_12_reservoir_15ml"}); rr.Code != http.StatusOK {
		t.Fatalf("put labware: %d", rr.Code)
	}
	if rr := do(t, app, http.MethodPut, "/api/protocol/labware/13", map[string]string{"type": "nest_12_reservoir_15ml"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid slot should be rejected, got %d", rr.Code)
	}
	if rr := do(t, app, http.MethodPut, "/api/protocol/labware/3", map[string]string{"type": "mystery"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown labware should be rejected, got %d", rr.Code)
	}

	// Liquids.
	rr = do(t, app, http.MethodPost, "/api/protocol/liquids", map[string]string{"name": "Buffer", "color": "#3366ff"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add liquid: %d %s", rr.Code, rr.Body.String())
	}
	added := decode[struct {
		Liquid protocol.Liquid `json:"liquid"`
	}](t, rr)
	if added.Liquid.ID == "" || added.Liquid.Name != "Buffer" {
		t.Fatalf("unexpected liquid: %+v", added.Liquid)
	}
	liquidID := added.Liquid.ID

	rr = do(t, app, http.MethodPost, "/api/protocol/liquid-state", map[string]any{
		"labwareId": "1", "wells": []string{"A1", "B1", "A1"}, "liquidId": liquidID, "volume": 150,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("assign liquid: %d %s", rr.Code, rr.Body.String())
	}
	state := decode[protocolBody](t, rr).Protocol.LiquidState["1"]
	if len(state) != 2 || state["B1"].LiquidID != liquidID || state["A1"].Volume != 150 {
		t.Fatalf("unexpected liquid state: %+v", state)
	}
	for name, body := range map[string]map[string]any{
		"off-plate well": {"labwareId": "1", "wells": []string{"Z9"}, "liquidId": liquidID, "volume": 10},
		"unknown liquid": {"labwareId": "1", "wells": []string{"A2"}, "liquidId": "liquid-nope", "volume": 10},
		"bad slot":       {"labwareId": "0", "wells": []string{"A2"}, "liquidId": liquidID, "volume": 10},
		"zero volume":    {"labwareId": "1", "wells": []string{"A2"}, "liquidId": liquidID, "volume": 0},
		"empty slot":     {"labwareId": "7", "wells": []string{"A1", "ZZ999"}, "liquidId": liquidID, "volume": 10},
	} {
		if rr := do(t, app, http.MethodPost, "/api/protocol/liquid-state", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
	rr = do(t, app, http.MethodPost, "/api/protocol/liquid-state", map[string]any{
		"labwareId": "1", "wells": []string{"B1"}, "liquidId": nil,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("clear wells: %d %s", rr.Code, rr.Body.String())
	}
	if state := decode[protocolBody](t, rr).Protocol.LiquidState["1"]; len(state) != 1 {
		t.Fatalf("expected B1 cleared: %+v", state)
	}
	rr = do(t, app, http.MethodPost, "/api/protocol/liquid-state", map[string]any{
		"labwareId": "9", "wells": []string{"A1"}, "liquidId": nil,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("clear on untouched slot: %d %s", rr.Code, rr.Body.String())
	}
	if _, ok := decode[protocolBody](t, rr).Protocol.LiquidState["9"]; ok {
		t.Fatalf("clearing an untouched slot must not create a liquid state entry")
	}
	if _, ok := app.Session().Snapshot().LiquidState["7"]; ok {
		t.Fatalf("rejected assignment leaked into the session")
	}

	rr = do(t, app, http.MethodPatch, "/api/protocol/liquids/"+liquidID, map[string]string{"name": "Wash buffer"})
	if rr.Code != http.StatusOK || decode[protocolBody](t, rr).Protocol.Liquids[liquidID].Color != "#3366ff" {
		t.Fatalf("update liquid should keep color: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodPatch, "/api/protocol/liquids/liquid-nope", map[string]string{"name": "x"}); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	// Steps.
	if rr := do(t, app, http.MethodPost, "/api/protocol/steps", map[string]string{}); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing step type should be rejected, got %d", rr.Code)
	}
	rr = do(t, app, http.MethodPost, "/api/protocol/steps", map[string]string{"type": "transfer"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add step: %d %s", rr.Code, rr.Body.String())
	}
	step := decode[struct {
		Step protocol.Step `json:"step"`
	}](t, rr).Step
	if step.Type != protocol.StepTransfer || step.Title != "Transfer" || step.Description != "New step" {
		t.Fatalf("unexpected step: %+v", step)
	}

	rr = do(t, app, http.MethodPatch, "/api/protocol/steps/"+step.ID, map[string]any{
		"title": "Move buffer",
		"params": map[string]any{
			"pipette": "left",
			"volume":  20,
			"source":  map[string]any{"labwareId": "1", "wells": []string{"A1", "A1"}},
			"dest":    map[string]any{"labwareId": "2", "wells": []string{"A1"}},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update step: %d %s", rr.Code, rr.Body.String())
	}
	updated := decode[struct {
		Step protocol.Step `json:"step"`
	}](t, rr).Step
	if updated.ID != step.ID || updated.Title != "Move buffer" || updated.Params.Transfer == nil {
		t.Fatalf("unexpected updated step: %+v", updated)
	}
	if wells := updated.Params.Transfer.Source.Wells; len(wells) != 1 {
		t.Fatalf("source wells should be deduplicated: %v", wells)
	}
	if rr := do(t, app, http.MethodPatch, "/api/protocol/steps/step-nope", map[string]string{"title": "x"}); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	if issues := decode[struct {
		Issues []protocol.Issue `json:"issues"`
	}](t, do(t, app, http.MethodGet, "/api/protocol/issues", nil)).Issues; len(issues) != 0 {
		t.Fatalf("expected a clean document, got %+v", issues)
	}

	if rr := do(t, app, http.MethodDelete, "/api/protocol/steps/"+protocol.DeckSetupID, nil); rr.Code != http.StatusConflict {
		t.Fatalf("deck setup delete should conflict, got %d", rr.Code)
	}
	if rr := do(t, app, http.MethodDelete, "/api/protocol/steps/step-nope", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	// Deletes leave dangling references that the issues report surfaces.
	if rr := do(t, app, http.MethodDelete, "/api/protocol/liquids/"+liquidID, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete liquid: %d", rr.Code)
	}
	if rr := do(t, app, http.MethodDelete, "/api/protocol/labware/2", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete labware: %d", rr.Code)
	}
	issues := decode[struct {
		Issues []protocol.Issue `json:"issues"`
	}](t, do(t, app, http.MethodGet, "/api/protocol/issues", nil)).Issues
	kinds := map[protocol.IssueKind]bool{}
	for _, issue := range issues {
		kinds[issue.Kind] = true
	}
	if !kinds[protocol.IssueOrphanLiquid] || !kinds[protocol.IssueMissingLabware] {
		t.Fatalf("expected orphan liquid and missing labware issues, got %+v", issues)
	}

	rr = do(t, app, http.MethodDelete, "/api/protocol/steps/"+step.ID, nil)
	if rr.Code != http.StatusOK || len(decode[protocolBody](t, rr).Protocol.Steps) != 1 {
		t.Fatalf("delete step: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSessionUpdateErrorKeepsDocument(t *testing.T) {
	testlog.Start(t)
	app := newTestApp(t, nil)
	before := app.Session().Snapshot()
	if rr := do(t, app, http.MethodDelete, "/api/protocol/liquids/liquid-missing", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	after := app.Session().Snapshot()
	if after.Metadata != before.Metadata || len(after.Liquids) != len(before.Liquids) {
		t.Fatalf("failed update changed the session")
	}
}
