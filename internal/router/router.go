package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"waticket/internal/flow"
	"waticket/internal/models"
	"waticket/internal/transport"

	"gorm.io/gorm"
)

// ErrConfigIntegrity marks a flow definition problem found while routing
// (dangling step pointer, missing initial step). The ticket is escalated to
// the fallback queue so it never stalls inside a broken flow.
var ErrConfigIntegrity = errors.New("flow configuration integrity error")

// Policy holds the retry/escalation knobs. These are configuration, not
// engine constants.
type Policy struct {
	MaxRetries    int
	FallbackQueue uint
	RetryPrompt   string
}

// Engine applies walker decisions to ticket state. One inbound event per
// ticket is processed at a time; events for different tickets run
// concurrently.
type Engine struct {
	DB     *gorm.DB
	Sender transport.Sender
	Policy Policy

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewEngine(db *gorm.DB, sender transport.Sender, policy Policy) *Engine {
	return &Engine{
		DB:     db,
		Sender: sender,
		Policy: policy,
		locks:  make(map[uint]*sync.Mutex),
	}
}

// Outcome reports what the router did with an inbound message
type Outcome struct {
	Transition string
	Decision   flow.Decision
}

func (e *Engine) ticketLock(ticketID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[ticketID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[ticketID] = l
	}
	return l
}

// HandleInbound routes one inbound message for a bot-driven ticket. Ticket
// state is only written after the decision's send has succeeded, so a
// transport failure leaves the ticket where it was and the caller may retry.
func (e *Engine) HandleInbound(ctx context.Context, ticketID uint, inboundText string) (*Outcome, error) {
	lock := e.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	var ticket models.Ticket
	if err := e.DB.Preload("Contact").First(&ticket, ticketID).Error; err != nil {
		return nil, fmt.Errorf("load ticket %d: %w", ticketID, err)
	}

	if !ticket.IsBotDriven() {
		log.Printf("[Router] Ticket %d is not bot-driven, ignoring inbound", ticket.ID)
		return nil, nil
	}

	graph, err := flow.LoadGraph(e.DB, *ticket.ChatFlowID)
	if err != nil {
		log.Printf("[Router] Ticket %d references flow %s that cannot be loaded: %v", ticket.ID, *ticket.ChatFlowID, err)
		return e.escalateConfig(&ticket, fmt.Sprintf("flow %s unavailable: %v", *ticket.ChatFlowID, err))
	}

	step, err := e.resolveStep(&ticket, graph)
	if err != nil {
		return e.escalateConfig(&ticket, err.Error())
	}

	decision := flow.Evaluate(inboundText, step)

	switch decision.Kind {
	case flow.DecisionReply:
		if err := e.send(ctx, &ticket, decision.ReplyText); err != nil {
			return nil, err
		}
		now := time.Now()
		err := e.commit(&ticket, map[string]interface{}{
			"bot_retry_count":         0,
			"last_bot_interaction_at": &now,
		}, models.TicketLog{
			TicketID:   ticket.ID,
			Actor:      "bot",
			Transition: models.TransitionReply,
			FromStepID: &step.ID,
			ToStepID:   &step.ID,
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{Transition: models.TransitionReply, Decision: decision}, nil

	case flow.DecisionAdvance:
		next := graph.Step(decision.NextStepID)
		if next == nil {
			log.Printf("[Router] Ticket %d: next step %d missing from flow %s", ticket.ID, decision.NextStepID, graph.Flow.ID)
			return e.escalateConfig(&ticket, fmt.Sprintf("dangling next step %d", decision.NextStepID))
		}
		if err := e.send(ctx, &ticket, next.Reply); err != nil {
			return nil, err
		}
		now := time.Now()
		err := e.commit(&ticket, map[string]interface{}{
			"current_step_id":         next.ID,
			"bot_retry_count":         0,
			"last_bot_interaction_at": &now,
		}, models.TicketLog{
			TicketID:   ticket.ID,
			Actor:      "bot",
			Transition: models.TransitionAdvance,
			FromStepID: &step.ID,
			ToStepID:   &next.ID,
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{Transition: models.TransitionAdvance, Decision: decision}, nil

	case flow.DecisionTransferQueue:
		err := e.commit(&ticket, map[string]interface{}{
			"chat_flow_id":    nil,
			"current_step_id": nil,
			"queue_id":        decision.QueueID,
		}, models.TicketLog{
			TicketID:   ticket.ID,
			Actor:      "bot",
			Transition: models.TransitionTransfer,
			FromStepID: &step.ID,
			FromQueue:  ticket.QueueID,
			ToQueue:    &decision.QueueID,
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{Transition: models.TransitionTransfer, Decision: decision}, nil

	case flow.DecisionTransferUser:
		err := e.commit(&ticket, map[string]interface{}{
			"chat_flow_id":    nil,
			"current_step_id": nil,
			"user_id":         decision.UserID,
		}, models.TicketLog{
			TicketID:   ticket.ID,
			Actor:      "bot",
			Transition: models.TransitionTransfer,
			FromStepID: &step.ID,
			FromQueue:  ticket.QueueID,
			ToQueue:    ticket.QueueID,
			Detail:     fmt.Sprintf("transfer to user %d", decision.UserID),
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{Transition: models.TransitionTransfer, Decision: decision}, nil

	case flow.DecisionEndFlow:
		err := e.commit(&ticket, map[string]interface{}{
			"chat_flow_id":    nil,
			"current_step_id": nil,
		}, models.TicketLog{
			TicketID:   ticket.ID,
			Actor:      "bot",
			Transition: models.TransitionEnd,
			FromStepID: &step.ID,
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{Transition: models.TransitionEnd, Decision: decision}, nil

	default: // no match
		return e.handleNoMatch(ctx, &ticket, step, decision)
	}
}

// resolveStep finds the step the ticket currently points to, falling back to
// the flow's initial step when the ticket has not entered the flow yet.
func (e *Engine) resolveStep(ticket *models.Ticket, graph *flow.Graph) (*models.FlowStep, error) {
	if ticket.CurrentStepID == nil {
		initial := graph.InitialStep()
		if initial == nil {
			return nil, fmt.Errorf("flow %s has no initial step", graph.Flow.ID)
		}
		return initial, nil
	}

	step := graph.Step(*ticket.CurrentStepID)
	if step == nil {
		return nil, fmt.Errorf("current step %d no longer exists in flow %s", *ticket.CurrentStepID, graph.Flow.ID)
	}
	return step, nil
}

func (e *Engine) handleNoMatch(ctx context.Context, ticket *models.Ticket, step *models.FlowStep, decision flow.Decision) (*Outcome, error) {
	retries := ticket.BotRetryCount + 1

	if retries > e.Policy.MaxRetries {
		log.Printf("[Router] Ticket %d exhausted %d bot retries, escalating to queue %d", ticket.ID, e.Policy.MaxRetries, e.Policy.FallbackQueue)
		return e.escalate(ticket, fmt.Sprintf("no match after %d retries", e.Policy.MaxRetries))
	}

	prompt := e.Policy.RetryPrompt
	if prompt == "" {
		prompt = step.Reply
	}
	if err := e.send(ctx, ticket, prompt); err != nil {
		return nil, err
	}

	now := time.Now()
	err := e.commit(ticket, map[string]interface{}{
		"bot_retry_count":         retries,
		"last_bot_interaction_at": &now,
	}, models.TicketLog{
		TicketID:   ticket.ID,
		Actor:      "bot",
		Transition: models.TransitionRetry,
		FromStepID: &step.ID,
		ToStepID:   &step.ID,
		Detail:     fmt.Sprintf("retry %d of %d", retries, e.Policy.MaxRetries),
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Transition: models.TransitionRetry, Decision: decision}, nil
}

// escalateConfig escalates over a broken flow definition. The ticket still
// lands in the fallback queue, and the caller gets the integrity error.
func (e *Engine) escalateConfig(ticket *models.Ticket, detail string) (*Outcome, error) {
	out, err := e.escalate(ticket, detail)
	if err != nil {
		return nil, err
	}
	return out, fmt.Errorf("%w: %s", ErrConfigIntegrity, detail)
}

// escalate forces the ticket out of bot control and into the fallback queue
func (e *Engine) escalate(ticket *models.Ticket, detail string) (*Outcome, error) {
	fallback := e.Policy.FallbackQueue
	err := e.commit(ticket, map[string]interface{}{
		"chat_flow_id":    nil,
		"current_step_id": nil,
		"bot_retry_count": 0,
		"queue_id":        fallback,
	}, models.TicketLog{
		TicketID:   ticket.ID,
		Actor:      "bot",
		Transition: models.TransitionEscalation,
		FromStepID: ticket.CurrentStepID,
		FromQueue:  ticket.QueueID,
		ToQueue:    &fallback,
		Detail:     detail,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Transition: models.TransitionEscalation}, nil
}

func (e *Engine) send(ctx context.Context, ticket *models.Ticket, body string) error {
	_, err := e.Sender.SendMessage(ctx, ticket.SessionID, ticket.Contact.Number, body, "")
	if err != nil {
		log.Printf("[Router] Send failed for ticket %d: %v", ticket.ID, err)
		return fmt.Errorf("send to ticket %d: %w", ticket.ID, err)
	}
	return nil
}

// commit writes the ticket mutation and its audit entry together, so every
// observable transition carries exactly one log row.
func (e *Engine) commit(ticket *models.Ticket, updates map[string]interface{}, entry models.TicketLog) error {
	return e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ticket{}).Where("id = ?", ticket.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
}
