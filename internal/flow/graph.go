package flow

import (
	"errors"
	"fmt"

	"waticket/internal/models"

	"gorm.io/gorm"
)

var (
	ErrFlowNotFound     = errors.New("flow not found")
	ErrNoInitialStep    = errors.New("flow has no initial step")
	ErrManyInitialSteps = errors.New("flow has more than one initial step")
)

// Graph is an in-memory index of a flow's steps, keyed by step id. Steps may
// reference each other cyclically ("back to menu" loops are a feature);
// only dangling and cross-flow references are rejected.
type Graph struct {
	Flow      *models.Flow
	stepsByID map[uint]*models.FlowStep
	initial   *models.FlowStep
}

// LoadGraph reads a flow with its steps and actions and builds the index.
// Actions come back in declaration order (position, then id) so evaluation
// order is stable.
func LoadGraph(db *gorm.DB, flowID string) (*Graph, error) {
	var f models.Flow
	err := db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("flow_steps.id ASC")
	}).Preload("Steps.Actions", func(db *gorm.DB) *gorm.DB {
		return db.Order("flow_actions.position ASC, flow_actions.id ASC")
	}).First(&f, "id = ?", flowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}

	g := &Graph{
		Flow:      &f,
		stepsByID: make(map[uint]*models.FlowStep, len(f.Steps)),
	}

	for i := range f.Steps {
		step := &f.Steps[i]
		g.stepsByID[step.ID] = step
		if step.IsInitialStep && g.initial == nil {
			g.initial = step
		}
	}

	return g, nil
}

// Step returns the step with the given id, or nil
func (g *Graph) Step(id uint) *models.FlowStep {
	return g.stepsByID[id]
}

// InitialStep returns the flow's entry step. Flows that fail Validate may
// still report their first-seen initial step here.
func (g *Graph) InitialStep() *models.FlowStep {
	return g.initial
}

// Validate enforces the activation-time policy: exactly one initial step,
// and every goto-step destination must exist in this same flow. Called when
// a flow is activated, not on every inbound message.
func (g *Graph) Validate() error {
	initialCount := 0
	for _, step := range g.stepsByID {
		if step.IsInitialStep {
			initialCount++
		}
	}
	if initialCount == 0 {
		return ErrNoInitialStep
	}
	if initialCount > 1 {
		return ErrManyInitialSteps
	}

	for _, step := range g.stepsByID {
		for _, action := range step.Actions {
			if action.Kind != models.ActionGotoStep {
				continue
			}
			if action.NextStepID == nil {
				return fmt.Errorf("step %d action %d: goto-step without destination", step.ID, action.ID)
			}
			if g.stepsByID[*action.NextStepID] == nil {
				return fmt.Errorf("step %d action %d: destination step %d not in flow %s",
					step.ID, action.ID, *action.NextStepID, g.Flow.ID)
			}
		}
	}

	return nil
}
