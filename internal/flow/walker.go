package flow

import (
	"strings"

	"waticket/internal/models"
)

// DecisionKind enumerates walker outcomes
type DecisionKind int

const (
	DecisionNoMatch DecisionKind = iota
	DecisionReply
	DecisionTransferQueue
	DecisionTransferUser
	DecisionAdvance
	DecisionEndFlow
)

// Decision is the outcome of evaluating one inbound message against a step
type Decision struct {
	Kind       DecisionKind
	ReplyText  string
	QueueID    uint
	UserID     uint
	NextStepID uint
}

// Evaluate matches the inbound text against the step's actions and returns
// the winning decision. The text is trimmed and case-folded; the trigger of
// each action is checked as a case-insensitive substring of the result.
// Actions are walked in declaration order and the first match wins, so two
// triggers that both match (e.g. "o" and "oi") resolve by position, never by
// length. Pure function, no side effects.
func Evaluate(inboundText string, step *models.FlowStep) Decision {
	normalized := strings.ToLower(strings.TrimSpace(inboundText))

	for _, action := range step.Actions {
		trigger := strings.ToLower(strings.TrimSpace(action.Trigger))
		if trigger == "" || !strings.Contains(normalized, trigger) {
			continue
		}

		switch action.Kind {
		case models.ActionReply:
			return Decision{Kind: DecisionReply, ReplyText: action.ReplyText}
		case models.ActionTransferQueue:
			if action.QueueID != nil {
				return Decision{Kind: DecisionTransferQueue, QueueID: *action.QueueID}
			}
		case models.ActionTransferUser:
			if action.UserID != nil {
				return Decision{Kind: DecisionTransferUser, UserID: *action.UserID}
			}
		case models.ActionGotoStep:
			if action.NextStepID != nil {
				return Decision{Kind: DecisionAdvance, NextStepID: *action.NextStepID}
			}
		case models.ActionEndFlow:
			return Decision{Kind: DecisionEndFlow}
		}
	}

	return Decision{Kind: DecisionNoMatch}
}
