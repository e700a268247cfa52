package api

import (
	"context"
	"net/http"
	"time"

	"waticket/internal/campaign"
	"waticket/internal/database"
	"waticket/internal/models"
	"waticket/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CampaignHandler struct {
	Scheduler *scheduler.Scheduler
}

func NewCampaignHandler(sched *scheduler.Scheduler) *CampaignHandler {
	return &CampaignHandler{Scheduler: sched}
}

type campaignRequest struct {
	Name      string     `json:"name" binding:"required"`
	StartAt   time.Time  `json:"start_at" binding:"required"`
	EndAt     *time.Time `json:"end_at"`
	Message1  string     `json:"message1"`
	Message2  string     `json:"message2"`
	Message3  string     `json:"message3"`
	MediaURL  string     `json:"media_url"`
	SessionID string     `json:"session_id" binding:"required"`
	DelayMs   int        `json:"delay_ms"`
	TenantID  uint       `json:"tenant_id"`
}

// CreateCampaign stores a campaign. The initial status depends on the
// schedule window: a future start is scheduled, otherwise pending.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Message1 == "" && req.Message2 == "" && req.Message3 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one message variant is required"})
		return
	}

	status := models.CampaignPending
	if req.StartAt.After(time.Now()) {
		status = models.CampaignScheduled
	}

	delay := req.DelayMs
	if delay <= 0 {
		delay = 2000
	}

	cp := models.Campaign{
		ID:        uuid.NewString(),
		Name:      req.Name,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Message1:  req.Message1,
		Message2:  req.Message2,
		Message3:  req.Message3,
		MediaURL:  req.MediaURL,
		SessionID: req.SessionID,
		DelayMs:   delay,
		Status:    status,
		TenantID:  req.TenantID,
	}

	if err := database.GormDB.Create(&cp).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": cp.ID, "status": cp.Status})
}

// EnrollRecipients adds contacts to a campaign with ack = 0
func (h *CampaignHandler) EnrollRecipients(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		ContactIDs []uint `json:"contact_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var cp models.Campaign
	if err := database.GormDB.First(&cp, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	enrolled := 0
	for _, contactID := range req.ContactIDs {
		r := models.CampaignRecipient{
			CampaignID: cp.ID,
			ContactID:  contactID,
			Ack:        models.AckNone,
		}
		if err := database.GormDB.Create(&r).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		enrolled++
	}

	c.JSON(http.StatusCreated, gin.H{"enrolled": enrolled})
}

// GetCampaigns lists campaigns with status derived on read
func (h *CampaignHandler) GetCampaigns(c *gin.Context) {
	var campaigns []models.Campaign
	if err := database.GormDB.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for i := range campaigns {
		if campaigns[i].Status == models.CampaignCanceled || campaigns[i].Status == models.CampaignFinished {
			continue
		}
		status, _, err := campaign.RefreshStatus(database.GormDB, campaigns[i].ID)
		if err == nil {
			campaigns[i].Status = status
		}
	}

	c.JSON(http.StatusOK, campaigns)
}

// GetCampaign returns one campaign with derived status and recipient counts
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	id := c.Param("id")

	var cp models.Campaign
	if err := database.GormDB.First(&cp, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	counts, err := campaign.CountRecipients(database.GormDB, cp.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if cp.Status != models.CampaignCanceled && cp.Status != models.CampaignFinished {
		status, _, err := campaign.RefreshStatus(database.GormDB, cp.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		cp.Status = status
	}

	c.JSON(http.StatusOK, gin.H{"campaign": cp, "counts": counts})
}

// StartCampaign launches the dispatch loop for a campaign immediately
func (h *CampaignHandler) StartCampaign(c *gin.Context) {
	id := c.Param("id")

	var cp models.Campaign
	if err := database.GormDB.First(&cp, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	if cp.Status == models.CampaignCanceled || cp.Status == models.CampaignFinished {
		c.JSON(http.StatusConflict, gin.H{"error": "campaign is " + cp.Status})
		return
	}

	// The dispatch outlives this request, so it does not inherit its context
	h.Scheduler.Launch(context.Background(), cp.ID)
	c.JSON(http.StatusAccepted, gin.H{"message": "Campaign dispatch started"})
}

// CancelCampaign sets the sticky terminal status; the dispatch loop notices
// before its next send
func (h *CampaignHandler) CancelCampaign(c *gin.Context) {
	id := c.Param("id")

	if err := campaign.Cancel(database.GormDB, id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Campaign canceled"})
}
