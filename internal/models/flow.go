package models

import (
	"time"
)

// Flow represents an automated-reply decision tree
type Flow struct {
	ID        string     `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	Active    bool       `gorm:"default:false" json:"active"`
	TestPhone string     `gorm:"type:varchar(50)" json:"test_phone"`
	UserID    *uint      `json:"user_id"`
	TenantID  uint       `gorm:"index" json:"tenant_id"`
	Steps     []FlowStep `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE;" json:"steps"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Flow) TableName() string {
	return "flows"
}

// FlowStep is one node of a flow: a reply message plus its outgoing actions
type FlowStep struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	FlowID        string       `gorm:"index;type:varchar(255);not null" json:"flow_id"`
	Reply         string       `gorm:"type:text" json:"reply"`
	IsInitialStep bool         `gorm:"default:false" json:"is_initial_step"`
	Actions       []FlowAction `gorm:"foreignKey:StepID;constraint:OnDelete:CASCADE;" json:"actions"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FlowStep) TableName() string {
	return "flow_steps"
}

// FlowAction kinds
const (
	ActionReply         = "reply"
	ActionTransferQueue = "transfer-queue"
	ActionTransferUser  = "transfer-user"
	ActionGotoStep      = "goto-step"
	ActionEndFlow       = "end-flow"
)

// FlowAction maps a trigger phrase on a step to an outcome. Position is the
// declaration order; evaluation walks actions in ascending position and the
// first match wins.
type FlowAction struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	StepID     uint   `gorm:"index;not null" json:"step_id"`
	Position   int    `gorm:"default:0" json:"position"`
	Trigger    string `gorm:"type:varchar(255);not null" json:"trigger"`
	Kind       string `gorm:"type:varchar(30);not null" json:"kind"`
	ReplyText  string `gorm:"type:text" json:"reply_text"`
	QueueID    *uint  `json:"queue_id"`
	UserID     *uint  `json:"user_id"`
	NextStepID *uint  `json:"next_step_id"`
}

func (FlowAction) TableName() string {
	return "flow_actions"
}
