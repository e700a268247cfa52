package models

import (
	"time"
)

// Campaign lifecycle statuses. Canceled is the only one an external actor
// writes directly; the rest are derived from recipient ack counts.
const (
	CampaignPending    = "pending"
	CampaignScheduled  = "scheduled"
	CampaignProcessing = "processing"
	CampaignCanceled   = "canceled"
	CampaignFinished   = "finished"
)

// Recipient delivery ack codes, monotonically non-decreasing per recipient
const (
	AckNone      = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// Campaign represents a scheduled bulk-send job
type Campaign struct {
	ID        string     `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name" validate:"required,min=3"`
	StartAt   time.Time  `gorm:"not null" json:"start_at" validate:"required"`
	EndAt     *time.Time `json:"end_at"`
	Message1  string     `gorm:"type:text" json:"message1"`
	Message2  string     `gorm:"type:text" json:"message2"`
	Message3  string     `gorm:"type:text" json:"message3"`
	MediaURL  string     `gorm:"type:text" json:"media_url"`
	SessionID string     `gorm:"type:varchar(255);not null" json:"session_id" validate:"required"`
	DelayMs   int        `gorm:"default:2000" json:"delay_ms" validate:"gte=0"`
	Status    string     `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	TenantID  uint       `gorm:"index" json:"tenant_id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Messages returns the non-empty body variants in declaration order
func (c *Campaign) Messages() []string {
	var out []string
	for _, m := range []string{c.Message1, c.Message2, c.Message3} {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// CampaignRecipient is one enrolled contact of a campaign. Rows are created
// with Ack = AckNone and advanced in place by the dispatcher and by delivery
// receipts; Ack never goes backwards.
type CampaignRecipient struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CampaignID string     `gorm:"index;type:varchar(255);not null" json:"campaign_id"`
	ContactID  uint       `gorm:"index;not null" json:"contact_id"`
	Contact    Contact    `gorm:"foreignKey:ContactID" json:"contact"`
	Ack        int        `gorm:"default:0;index" json:"ack"`
	Variant    int        `gorm:"default:0" json:"variant"`
	MessageRef string     `gorm:"type:varchar(255)" json:"message_ref"`
	SentAt     *time.Time `json:"sent_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (CampaignRecipient) TableName() string {
	return "campaign_recipients"
}
