package api

import (
	"errors"
	"log"
	"net/http"

	"waticket/internal/campaign"
	"waticket/internal/database"
	"waticket/internal/router"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// EventHandler receives the external channel feed: inbound messages driving
// the ticket router and delivery receipts advancing recipient acks.
type EventHandler struct {
	Router *router.Engine
}

func NewEventHandler(engine *router.Engine) *EventHandler {
	return &EventHandler{Router: engine}
}

type inboundMessageEvent struct {
	TicketID uint   `json:"ticket_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// HandleInboundMessage routes one inbound message through the flow engine
func (h *EventHandler) HandleInboundMessage(c *gin.Context) {
	var event inboundMessageEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Router.HandleInbound(c.Request.Context(), event.TicketID, event.Text)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		if errors.Is(err, router.ErrConfigIntegrity) {
			// Ticket was escalated; report the broken flow definition
			log.Printf("[Events] Ticket %d escalated over flow config: %v", event.TicketID, err)
			c.JSON(http.StatusOK, gin.H{"transition": outcome.Transition, "warning": err.Error()})
			return
		}
		// Transport failure: ticket state untouched, transport layer retries
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if outcome == nil {
		c.JSON(http.StatusOK, gin.H{"transition": "none"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transition": outcome.Transition})
}

type deliveryReceiptEvent struct {
	RecipientID uint `json:"recipient_id" binding:"required"`
	Ack         int  `json:"ack" binding:"required"`
}

// HandleDeliveryReceipt advances a campaign recipient's ack code
func (h *EventHandler) HandleDeliveryReceipt(c *gin.Context) {
	var event deliveryReceiptEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := campaign.ApplyReceipt(database.GormDB, event.RecipientID, event.Ack); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}
