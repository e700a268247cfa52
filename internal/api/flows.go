package api

import (
	"net/http"

	"waticket/internal/database"
	"waticket/internal/flow"
	"waticket/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FlowHandler struct{}

func NewFlowHandler() *FlowHandler {
	return &FlowHandler{}
}

type flowActionRequest struct {
	Trigger       string `json:"trigger" binding:"required"`
	Kind          string `json:"kind" binding:"required"`
	ReplyText     string `json:"reply_text"`
	QueueID       *uint  `json:"queue_id"`
	UserID        *uint  `json:"user_id"`
	NextStepIndex *int   `json:"next_step_index"`
}

type flowStepRequest struct {
	Reply         string              `json:"reply"`
	IsInitialStep bool                `json:"is_initial_step"`
	Actions       []flowActionRequest `json:"actions"`
}

type flowRequest struct {
	Name      string            `json:"name" binding:"required"`
	TestPhone string            `json:"test_phone"`
	TenantID  uint              `json:"tenant_id"`
	Steps     []flowStepRequest `json:"steps"`
}

// CreateFlow stores a flow with its steps and actions in one shot. Goto
// destinations arrive as indexes into the request's steps array and are
// resolved to step ids once those exist.
func (h *FlowHandler) CreateFlow(c *gin.Context) {
	var req flowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := models.Flow{
		ID:        uuid.NewString(),
		Name:      req.Name,
		TestPhone: req.TestPhone,
		TenantID:  req.TenantID,
	}

	if err := database.GormDB.Create(&f).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	steps := make([]models.FlowStep, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = models.FlowStep{
			FlowID:        f.ID,
			Reply:         s.Reply,
			IsInitialStep: s.IsInitialStep,
		}
		if err := database.GormDB.Create(&steps[i]).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	for i, s := range req.Steps {
		for pos, a := range s.Actions {
			action := models.FlowAction{
				StepID:    steps[i].ID,
				Position:  pos,
				Trigger:   a.Trigger,
				Kind:      a.Kind,
				ReplyText: a.ReplyText,
				QueueID:   a.QueueID,
				UserID:    a.UserID,
			}
			if a.NextStepIndex != nil {
				if *a.NextStepIndex < 0 || *a.NextStepIndex >= len(steps) {
					c.JSON(http.StatusBadRequest, gin.H{"error": "next_step_index out of range"})
					return
				}
				action.NextStepID = &steps[*a.NextStepIndex].ID
			}
			if err := database.GormDB.Create(&action).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
	}

	c.JSON(http.StatusCreated, gin.H{"id": f.ID, "message": "Flow created successfully"})
}

// GetFlows returns all flows
func (h *FlowHandler) GetFlows(c *gin.Context) {
	var flows []models.Flow
	if err := database.GormDB.Order("created_at DESC").Find(&flows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, flows)
}

// GetFlow returns one flow with its steps and actions
func (h *FlowHandler) GetFlow(c *gin.Context) {
	id := c.Param("id")

	g, err := flow.LoadGraph(database.GormDB, id)
	if err != nil {
		if err == flow.ErrFlowNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, g.Flow)
}

// ActivateFlow validates the flow graph and flips it active. A flow with
// zero or multiple initial steps, or with dangling goto destinations, is
// refused here rather than failing tickets later.
func (h *FlowHandler) ActivateFlow(c *gin.Context) {
	id := c.Param("id")

	g, err := flow.LoadGraph(database.GormDB, id)
	if err != nil {
		if err == flow.ErrFlowNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := g.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err := database.GormDB.Model(&models.Flow{}).Where("id = ?", id).Update("active", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flow activated successfully"})
}

// DeactivateFlow flips a flow inactive
func (h *FlowHandler) DeactivateFlow(c *gin.Context) {
	id := c.Param("id")

	if err := database.GormDB.Model(&models.Flow{}).Where("id = ?", id).Update("active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flow deactivated successfully"})
}

// DeleteFlow removes a flow and, via cascade, its steps and actions
func (h *FlowHandler) DeleteFlow(c *gin.Context) {
	id := c.Param("id")

	if err := database.GormDB.Delete(&models.Flow{}, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flow deleted successfully"})
}
