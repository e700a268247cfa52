package campaign

import (
	"fmt"

	"waticket/internal/models"

	"gorm.io/gorm"
)

// Counts buckets a campaign's recipients by delivery progress
type Counts struct {
	Total           int64 `json:"total"`
	PendingSend     int64 `json:"pending_send"`
	PendingDelivery int64 `json:"pending_delivery"`
	Delivered       int64 `json:"delivered"`
	Read            int64 `json:"read"`
}

// Processed returns how many recipients have at least been sent to
func (c Counts) Processed() int64 {
	return c.PendingDelivery + c.Delivered + c.Read
}

// DeriveStatus recomputes a campaign's lifecycle status from its recipient
// counts. Canceled and finished are terminal and returned unchanged. The
// result is idempotent over the same counts and never regresses: once
// processing has started the status can only move forward to finished.
func DeriveStatus(stored string, c Counts) string {
	if stored == models.CampaignCanceled || stored == models.CampaignFinished {
		return stored
	}

	processed := c.Processed()

	if stored == models.CampaignScheduled && processed == 0 {
		return models.CampaignScheduled
	}
	if processed != c.Total {
		return models.CampaignProcessing
	}
	if c.Total > 0 {
		return models.CampaignFinished
	}
	return stored
}

// CountRecipients buckets recipient rows by ack code for one campaign
func CountRecipients(db *gorm.DB, campaignID string) (Counts, error) {
	var counts Counts

	rows, err := db.Model(&models.CampaignRecipient{}).
		Select("ack, count(*) as n").
		Where("campaign_id = ?", campaignID).
		Group("ack").
		Rows()
	if err != nil {
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var ack int
		var n int64
		if err := rows.Scan(&ack, &n); err != nil {
			return counts, err
		}
		counts.Total += n
		switch ack {
		case models.AckNone:
			counts.PendingSend += n
		case models.AckSent:
			counts.PendingDelivery += n
		case models.AckDelivered:
			counts.Delivered += n
		case models.AckRead:
			counts.Read += n
		}
	}

	return counts, rows.Err()
}

// RefreshStatus re-derives a campaign's status from its recipient rows and
// persists it back to the campaign as a cache. The recipient counts stay the
// source of truth; this runs on every read of a non-terminal campaign and
// tolerates the dispatcher updating rows concurrently.
func RefreshStatus(db *gorm.DB, campaignID string) (string, Counts, error) {
	var c models.Campaign
	if err := db.First(&c, "id = ?", campaignID).Error; err != nil {
		return "", Counts{}, err
	}

	counts, err := CountRecipients(db, campaignID)
	if err != nil {
		return "", Counts{}, err
	}

	derived := DeriveStatus(c.Status, counts)
	if derived != c.Status {
		if err := db.Model(&models.Campaign{}).Where("id = ?", campaignID).Update("status", derived).Error; err != nil {
			return "", Counts{}, err
		}
	}

	return derived, counts, nil
}

// ApplyReceipt advances a recipient's ack code from a delivery receipt. Acks
// only move forward (1 -> 2 -> 3); stale or duplicate receipts are no-ops.
func ApplyReceipt(db *gorm.DB, recipientID uint, ack int) error {
	if ack < models.AckSent || ack > models.AckRead {
		return fmt.Errorf("invalid ack code %d", ack)
	}

	return db.Model(&models.CampaignRecipient{}).
		Where("id = ? AND ack < ?", recipientID, ack).
		Update("ack", ack).Error
}

// Cancel marks a campaign canceled. This is the one status written directly
// by an external actor; the dispatcher notices before its next send.
func Cancel(db *gorm.DB, campaignID string) error {
	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status <> ?", campaignID, models.CampaignFinished).
		Update("status", models.CampaignCanceled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("campaign %s cannot be canceled", campaignID)
	}
	return nil
}
