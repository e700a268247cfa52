package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"waticket/internal/models"
	"waticket/internal/transport"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Variant selection policies
const (
	VariantRandom     = "random"
	VariantRoundRobin = "round-robin"
)

var ErrNothingToSend = errors.New("campaign has no pending recipients")

// Dispatcher fans a campaign out to its recipients at the campaign's
// configured rate. Recipients within one campaign are sent strictly in
// sequence with the inter-message delay between them; different campaigns
// run concurrently with independent timers.
type Dispatcher struct {
	DB            *gorm.DB
	Sender        transport.Sender
	VariantPolicy string

	validate *validator.Validate
}

func NewDispatcher(db *gorm.DB, sender transport.Sender, variantPolicy string) *Dispatcher {
	return &Dispatcher{
		DB:            db,
		Sender:        sender,
		VariantPolicy: variantPolicy,
		validate:      validator.New(),
	}
}

// Report summarizes one dispatch run
type Report struct {
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Canceled bool `json:"canceled"`
}

type variant struct {
	index int // 1-based slot on the campaign (message1..message3)
	body  string
}

// Run dispatches one campaign. Safe to re-invoke after a crash: only rows
// with ack = 0 are selected, so completed work is skipped. Individual send
// failures are counted and skipped, never fatal to the batch.
func (d *Dispatcher) Run(ctx context.Context, campaignID string) (*Report, error) {
	var c models.Campaign
	if err := d.DB.First(&c, "id = ?", campaignID).Error; err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}

	if c.Status == models.CampaignCanceled || c.Status == models.CampaignFinished {
		return nil, fmt.Errorf("campaign %s is %s", c.ID, c.Status)
	}

	variants, err := d.validateCampaign(&c)
	if err != nil {
		return nil, err
	}

	var recipients []models.CampaignRecipient
	err = d.DB.Preload("Contact").
		Where("campaign_id = ? AND ack = ?", c.ID, models.AckNone).
		Order("id ASC").
		Find(&recipients).Error
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNothingToSend
	}

	log.Printf("[Dispatcher] Campaign %s: dispatching to %d recipients (delay %dms)", c.ID, len(recipients), c.DelayMs)

	report := &Report{}
	delay := time.Duration(c.DelayMs) * time.Millisecond

	for i, r := range recipients {
		// Cooperative cancellation: checked once per recipient, never
		// mid-send.
		if d.isCanceled(c.ID) {
			log.Printf("[Dispatcher] Campaign %s canceled, stopping after %d sends", c.ID, report.Sent)
			report.Canceled = true
			break
		}

		v := d.pickVariant(variants, i)
		body := renderVariables(v.body, &r.Contact)

		ref, err := d.Sender.SendMessage(ctx, c.SessionID, r.Contact.Number, body, c.MediaURL)
		if err != nil {
			log.Printf("[Dispatcher] Campaign %s: send to %s failed: %v", c.ID, r.Contact.Number, err)
			report.Failed++
		} else {
			now := time.Now()
			err = d.DB.Model(&models.CampaignRecipient{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
				"ack":         models.AckSent,
				"variant":     v.index,
				"message_ref": ref,
				"sent_at":     &now,
			}).Error
			if err != nil {
				log.Printf("[Dispatcher] Campaign %s: recording send for recipient %d failed: %v", c.ID, r.ID, err)
			}
			report.Sent++
		}

		if i < len(recipients)-1 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if _, _, err := RefreshStatus(d.DB, c.ID); err != nil {
		log.Printf("[Dispatcher] Campaign %s: status refresh failed: %v", c.ID, err)
	}

	return report, nil
}

// validateCampaign rejects a malformed campaign before the loop starts
func (d *Dispatcher) validateCampaign(c *models.Campaign) ([]variant, error) {
	if err := d.validate.Struct(c); err != nil {
		return nil, fmt.Errorf("campaign %s invalid: %w", c.ID, err)
	}

	var variants []variant
	for i, body := range []string{c.Message1, c.Message2, c.Message3} {
		if strings.TrimSpace(body) != "" {
			variants = append(variants, variant{index: i + 1, body: body})
		}
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("campaign %s has no message variants", c.ID)
	}

	var total int64
	if err := d.DB.Model(&models.CampaignRecipient{}).Where("campaign_id = ?", c.ID).Count(&total).Error; err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, fmt.Errorf("campaign %s has no recipients", c.ID)
	}

	return variants, nil
}

func (d *Dispatcher) pickVariant(variants []variant, position int) variant {
	if len(variants) == 1 {
		return variants[0]
	}
	switch d.VariantPolicy {
	case VariantRoundRobin:
		return variants[position%len(variants)]
	default:
		return variants[rand.Intn(len(variants))]
	}
}

func (d *Dispatcher) isCanceled(campaignID string) bool {
	var status string
	err := d.DB.Model(&models.Campaign{}).
		Select("status").
		Where("id = ?", campaignID).
		Scan(&status).Error
	if err != nil {
		log.Printf("[Dispatcher] Campaign %s: cancel check failed: %v", campaignID, err)
		return false
	}
	return status == models.CampaignCanceled
}

// renderVariables substitutes contact placeholders into a message body
func renderVariables(body string, contact *models.Contact) string {
	body = strings.ReplaceAll(body, "{{name}}", contact.Name)
	body = strings.ReplaceAll(body, "{{number}}", contact.Number)
	return body
}
