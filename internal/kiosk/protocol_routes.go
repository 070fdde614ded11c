package kiosk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danmuck/labdeck/internal/protocol"
	"github.com/danmuck/labdeck/internal/protocol/state"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func (a *App) handleGetProtocol(c *gin.Context) {
	c.JSON(http.StatusOK, a.session.Snapshot())
}

// handleStartProtocol replaces the session with a document built from the
// new-protocol wizard, with the deck setup step in place.
func (a *App) handleStartProtocol(c *gin.Context) {
	var answers protocol.WizardAnswers
	if err := c.ShouldBindJSON(&answers); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	doc, err := a.session.Update(func(m *state.Manager, _ protocol.Document) (protocol.Document, error) {
		fresh, err := protocol.FromWizard(answers, a.opts.Now())
		if err != nil {
			return protocol.Document{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return m.EnsureDeckSetup(fresh), nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Msgf("kiosk.App.handleStartProtocol name=%q", doc.Metadata.Name)
	c.JSON(http.StatusCreated, doc)
}

func (a *App) handleProtocolIssues(c *gin.Context) {
	issues := protocol.Validate(a.session.Snapshot())
	if issues == nil {
		issues = []protocol.Issue{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

type addStepRequest struct {
	Type protocol.StepType `json:"type"`
}

func (a *App) handleAddStep(c *gin.Context) {
	var req addStepRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(string(req.Type)) == "" {
		writeError(c, fmt.Errorf("%w: step type required", ErrBadRequest))
		return
	}
	if req.Type == protocol.StepDeckSetup {
		writeError(c, fmt.Errorf("%w: deck setup step is managed automatically", ErrBadRequest))
		return
	}
	doc, _ := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		return m.AddStep(doc, req.Type), nil
	})
	step := doc.Steps[len(doc.Steps)-1]
	c.JSON(http.StatusCreated, gin.H{"step": step, "protocol": doc})
}

type updateStepRequest struct {
	Type        *protocol.StepType `json:"type"`
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Params      json.RawMessage    `json:"params"`
}

func (a *App) handleUpdateStep(c *gin.Context) {
	id := c.Param("id")
	var req updateStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	doc, err := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		current, _, ok := doc.StepByID(id)
		if !ok {
			return doc, fmt.Errorf("%w: %s", ErrStepNotFound, id)
		}
		update := state.StepUpdate{
			Type:        req.Type,
			Title:       req.Title,
			Description: req.Description,
		}
		if len(req.Params) > 0 {
			stepType := current.Type
			if req.Type != nil {
				stepType = *req.Type
			}
			params, err := protocol.DecodeParams(stepType, req.Params)
			if err != nil {
				return doc, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			update.Params = &params
		}
		return m.UpdateStep(doc, id, update), nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	step, _, _ := doc.StepByID(id)
	c.JSON(http.StatusOK, gin.H{"step": step, "protocol": doc})
}

func (a *App) handleDeleteStep(c *gin.Context) {
	id := c.Param("id")
	doc, err := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		if id == protocol.DeckSetupID {
			return doc, ErrDeckSetupProtected
		}
		if _, _, ok := doc.StepByID(id); !ok {
			return doc, fmt.Errorf("%w: %s", ErrStepNotFound, id)
		}
		return m.DeleteStep(doc, id), nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol": doc})
}

type putLabwareRequest struct {
	Type string `json:"type"`
}

func (a *App) handlePutLabware(c *gin.Context) {
	slot, err := protocol.ParseSlot(c.Param("slot"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	var req putLabwareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	def, err := a.opts.Catalog.Lookup(strings.TrimSpace(req.Type))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	doc, _ := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		return m.AddLabware(doc, slot, def.Placed(slot)), nil
	})
	c.JSON(http.StatusOK, gin.H{"labware": doc.Labware[slot], "protocol": doc})
}

func (a *App) handleDeleteLabware(c *gin.Context) {
	slot, err := protocol.ParseSlot(c.Param("slot"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	doc, _ := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		return m.RemoveLabware(doc, slot), nil
	})
	c.JSON(http.StatusOK, gin.H{"protocol": doc})
}

type liquidRequest struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func (a *App) handleAddLiquid(c *gin.Context) {
	var req liquidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(c, fmt.Errorf("%w: liquid name required", ErrBadRequest))
		return
	}
	liquid := protocol.Liquid{ID: strings.TrimSpace(req.ID), Name: strings.TrimSpace(*req.Name)}
	if req.Color != nil {
		liquid.Color = *req.Color
	}

	var added protocol.Liquid
	doc, _ := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		next := m.AddLiquid(doc, liquid)
		added = newLiquid(doc, next, liquid.ID)
		return next, nil
	})
	c.JSON(http.StatusCreated, gin.H{"liquid": added, "protocol": doc})
}

// newLiquid finds the liquid AddLiquid stored, whether its id was given or
// generated.
func newLiquid(prev, next protocol.Document, id string) protocol.Liquid {
	if id != "" {
		return next.Liquids[id]
	}
	for key, liquid := range next.Liquids {
		if _, existed := prev.Liquids[key]; !existed {
			return liquid
		}
	}
	return protocol.Liquid{}
}

func (a *App) handleUpdateLiquid(c *gin.Context) {
	id := c.Param("id")
	var req liquidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	doc, err := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		if _, ok := doc.Liquids[id]; !ok {
			return doc, fmt.Errorf("%w: %s", ErrLiquidNotFound, id)
		}
		return m.UpdateLiquid(doc, id, state.LiquidUpdate{Name: req.Name, Color: req.Color}), nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liquid": doc.Liquids[id], "protocol": doc})
}

func (a *App) handleDeleteLiquid(c *gin.Context) {
	id := c.Param("id")
	doc, err := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		if _, ok := doc.Liquids[id]; !ok {
			return doc, fmt.Errorf("%w: %s", ErrLiquidNotFound, id)
		}
		return m.DeleteLiquid(doc, id), nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol": doc})
}

type assignLiquidRequest struct {
	LabwareID protocol.Slot `json:"labwareId"`
	Wells     []string      `json:"wells"`
	LiquidID  *string       `json:"liquidId"`
	Volume    float64       `json:"volume"`
}

// handleAssignLiquid sets or (with a null liquidId) clears the wells of one
// slot. Assignments need labware in the slot, and wells are checked against
// its footprint when the catalog knows its type. A clear on a slot with no
// liquid state leaves the document as is.
func (a *App) handleAssignLiquid(c *gin.Context) {
	var req assignLiquidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if !req.LabwareID.Valid() {
		writeError(c, fmt.Errorf("%w: %w: %q", ErrBadRequest, protocol.ErrInvalidSlot, req.LabwareID))
		return
	}
	wells := protocol.NormalizeWells(req.Wells)
	if len(wells) == 0 {
		writeError(c, fmt.Errorf("%w: wells required", ErrBadRequest))
		return
	}
	liquidID := ""
	if req.LiquidID != nil {
		liquidID = strings.TrimSpace(*req.LiquidID)
		if req.Volume <= 0 {
			writeError(c, fmt.Errorf("%w: volume must be > 0", ErrBadRequest))
			return
		}
	}

	doc, err := a.session.Update(func(m *state.Manager, doc protocol.Document) (protocol.Document, error) {
		if liquidID == "" {
			// Clearing may tidy up a slot whose labware is gone, but never
			// creates a slot entry.
			if _, ok := doc.LiquidState[req.LabwareID]; !ok {
				return doc, nil
			}
			return m.ClearWells(doc, req.LabwareID, wells), nil
		}

		lw, ok := doc.Labware[req.LabwareID]
		if !ok {
			return doc, fmt.Errorf("%w: slot %s has no labware", ErrBadRequest, req.LabwareID)
		}
		if def, err := a.opts.Catalog.Lookup(lw.Type); err == nil {
			for _, well := range wells {
				if !def.HasWell(well) {
					return doc, fmt.Errorf("%w: well %s not on %s", ErrBadRequest, well, lw.Type)
				}
			}
		}
		if _, ok := doc.Liquids[liquidID]; !ok {
			return doc, fmt.Errorf("%w: unknown liquid %s", ErrBadRequest, liquidID)
		}
		return m.AssignLiquid(doc, req.LabwareID, wells, liquidID, req.Volume), nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol": doc})
}
