package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"waticket/internal/database"
	"waticket/internal/models"
	"waticket/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSender struct{}

func (fakeSender) SendMessage(context.Context, string, string, string, string) (string, error) {
	return "msg-1", nil
}

func setupAPI(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	database.GormDB = db

	engine := router.NewEngine(db, fakeSender{}, router.Policy{MaxRetries: 3, FallbackQueue: 1})
	events := NewEventHandler(engine)

	r := gin.New()
	r.POST("/webhook/messages", events.HandleInboundMessage)
	r.POST("/webhook/receipts", events.HandleDeliveryReceipt)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInboundMessageRoutesTicket(t *testing.T) {
	r := setupAPI(t)
	db := database.GormDB

	contact := models.Contact{Name: "Ana", Number: "5511999990000"}
	require.NoError(t, db.Create(&contact).Error)

	f := models.Flow{ID: "flow-1", Name: "Menu", Active: true}
	require.NoError(t, db.Create(&f).Error)
	step := models.FlowStep{FlowID: f.ID, Reply: "Choose 1", IsInitialStep: true}
	require.NoError(t, db.Create(&step).Error)
	require.NoError(t, db.Create(&models.FlowAction{
		StepID: step.ID, Trigger: "1", Kind: models.ActionEndFlow,
	}).Error)

	ticket := models.Ticket{Status: models.TicketOpen, ContactID: contact.ID, SessionID: "s1", ChatFlowID: &f.ID}
	require.NoError(t, db.Create(&ticket).Error)

	w := postJSON(t, r, "/webhook/messages", gin.H{"ticket_id": ticket.ID, "text": "1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.TransitionEnd, resp["transition"])
}

func TestInboundMessageValidatesPayload(t *testing.T) {
	r := setupAPI(t)

	w := postJSON(t, r, "/webhook/messages", gin.H{"text": "hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeliveryReceiptAdvancesAck(t *testing.T) {
	r := setupAPI(t)
	db := database.GormDB

	contact := models.Contact{Name: "Bo", Number: "5511888880000"}
	require.NoError(t, db.Create(&contact).Error)
	recipient := models.CampaignRecipient{CampaignID: "camp-1", ContactID: contact.ID, Ack: models.AckSent}
	require.NoError(t, db.Create(&recipient).Error)

	w := postJSON(t, r, "/webhook/receipts", gin.H{"recipient_id": recipient.ID, "ack": models.AckDelivered})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.First(&recipient, recipient.ID).Error)
	assert.Equal(t, models.AckDelivered, recipient.Ack)
}
