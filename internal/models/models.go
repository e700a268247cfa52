package models

import (
	"time"
)

// Contact represents a channel contact (a phone number we talk to)
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Number    string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"number"`
	TenantID  uint      `gorm:"index" json:"tenant_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Queue represents a human attendance queue tickets can be transferred to
type Queue struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	TenantID uint   `gorm:"index" json:"tenant_id"`
}

func (Queue) TableName() string {
	return "queues"
}

// User represents a human agent
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	TenantID uint   `gorm:"index" json:"tenant_id"`
}

func (User) TableName() string {
	return "users"
}

// Ticket lifecycle statuses
const (
	TicketPending = "pending"
	TicketOpen    = "open"
	TicketClosed  = "closed"
)

// Ticket represents one ongoing conversation with a contact
type Ticket struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Status               string     `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ContactID            uint       `gorm:"index;not null" json:"contact_id"`
	Contact              Contact    `gorm:"foreignKey:ContactID" json:"contact"`
	UserID               *uint      `json:"user_id"`
	QueueID              *uint      `json:"queue_id"`
	SessionID            string     `gorm:"type:varchar(255)" json:"session_id"`
	ChatFlowID           *string    `gorm:"type:varchar(255);index" json:"chat_flow_id"`
	CurrentStepID        *uint      `json:"current_step_id"`
	BotRetryCount        int        `gorm:"default:0" json:"bot_retry_count"`
	LastBotInteractionAt *time.Time `json:"last_bot_interaction_at"`
	TenantID             uint       `gorm:"index" json:"tenant_id"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// IsBotDriven reports whether the flow engine currently owns this ticket
func (t *Ticket) IsBotDriven() bool {
	return t.ChatFlowID != nil && t.Status != TicketClosed
}

// TicketLog is an append-only audit entry for a ticket transition
type TicketLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TicketID   uint      `gorm:"index;not null" json:"ticket_id"`
	Actor      string    `gorm:"type:varchar(50)" json:"actor"`
	Transition string    `gorm:"type:varchar(50)" json:"transition"`
	FromStepID *uint     `json:"from_step_id"`
	ToStepID   *uint     `json:"to_step_id"`
	FromQueue  *uint     `json:"from_queue"`
	ToQueue    *uint     `json:"to_queue"`
	Detail     string    `gorm:"type:text" json:"detail"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TicketLog) TableName() string {
	return "ticket_logs"
}

// Ticket transition types recorded in TicketLog
const (
	TransitionReply      = "reply"
	TransitionAdvance    = "advance"
	TransitionTransfer   = "transfer"
	TransitionEnd        = "end"
	TransitionRetry      = "retry"
	TransitionEscalation = "escalation"
)
