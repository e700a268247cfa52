package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"waticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMessage struct {
	SessionID string
	To        string
	Body      string
	Media     string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]error // keyed by contact number
	onSend  func(to string)
}

func (f *fakeSender) SendMessage(_ context.Context, sessionID, to, body, media string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(to)
	}
	if err := f.failFor[to]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, sentMessage{SessionID: sessionID, To: to, Body: body, Media: media})
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func enroll(t *testing.T, db *gorm.DB, campaignID string, n int) []models.CampaignRecipient {
	t.Helper()
	recipients := make([]models.CampaignRecipient, n)
	for i := 0; i < n; i++ {
		contact := models.Contact{Name: fmt.Sprintf("Contact %d", i), Number: fmt.Sprintf("55%010d", i)}
		require.NoError(t, db.Create(&contact).Error)
		recipients[i] = models.CampaignRecipient{CampaignID: campaignID, ContactID: contact.ID}
		require.NoError(t, db.Create(&recipients[i]).Error)
	}
	return recipients
}

func newCampaign(t *testing.T, db *gorm.DB, delayMs int) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		ID:        "camp-" + t.Name(),
		Name:      "Product launch",
		StartAt:   time.Now(),
		Message1:  "Hi {{name}}!",
		SessionID: "session-1",
		DelayMs:   delayMs,
		Status:    models.CampaignPending,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// Three recipients with a 100ms delay: all rows end at ack = 1 and the run
// takes at least the two inter-message delays.
func TestDispatchSendsAllAtConfiguredRate(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 100)
	enroll(t, db, c.ID, 3)

	sender := &fakeSender{}
	d := NewDispatcher(db, sender, VariantRoundRobin)

	start := time.Now()
	report, err := d.Run(context.Background(), c.ID)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 0, report.Failed)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

	var rows []models.CampaignRecipient
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, models.AckSent, r.Ack)
		assert.NotEmpty(t, r.MessageRef)
		assert.NotNil(t, r.SentAt)
		assert.Equal(t, 1, r.Variant)
	}

	// Rendered body carries the contact's name
	require.Len(t, sender.sent, 3)
	assert.Equal(t, "Hi Contact 0!", sender.sent[0].Body)

	// Everything at least sent: the derived status is finished
	status, _, err := RefreshStatus(db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFinished, status)
}

// Re-running a campaign must not resend to recipients already at ack >= 1
func TestDispatchRestartIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	enroll(t, db, c.ID, 3)

	sender := &fakeSender{}
	d := NewDispatcher(db, sender, VariantRoundRobin)

	report, err := d.Run(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, report.Sent)

	// The completed run derived finished; a second invocation refuses the
	// terminal campaign and nobody is messaged twice
	_, err = d.Run(context.Background(), c.ID)
	require.Error(t, err)
	assert.Len(t, sender.sent, 3)
}

// A crash halfway leaves some rows at ack = 0; the re-run picks up exactly
// those.
func TestDispatchResumesPendingOnly(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	recipients := enroll(t, db, c.ID, 4)

	// Simulate a prior partial run
	for _, r := range recipients[:2] {
		require.NoError(t, db.Model(&models.CampaignRecipient{}).Where("id = ?", r.ID).
			Update("ack", models.AckSent).Error)
	}

	sender := &fakeSender{}
	d := NewDispatcher(db, sender, VariantRoundRobin)

	report, err := d.Run(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Len(t, sender.sent, 2)
}

func TestDispatchNothingPending(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	recipients := enroll(t, db, c.ID, 2)
	for _, r := range recipients {
		require.NoError(t, db.Model(&models.CampaignRecipient{}).Where("id = ?", r.ID).
			Update("ack", models.AckSent).Error)
	}

	d := NewDispatcher(db, &fakeSender{}, VariantRoundRobin)
	_, err := d.Run(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrNothingToSend)
}

// One failing recipient is skipped; the rest of the batch still goes out
func TestDispatchSkipsFailedSends(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	enroll(t, db, c.ID, 3)

	sender := &fakeSender{failFor: map[string]error{
		fmt.Sprintf("55%010d", 1): errors.New("number unreachable"),
	}}
	d := NewDispatcher(db, sender, VariantRoundRobin)

	report, err := d.Run(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)

	var pending int64
	require.NoError(t, db.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND ack = ?", c.ID, models.AckNone).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

// Cancellation is noticed between recipients: after the first send flips the
// status to canceled, no further sends happen.
func TestDispatchStopsOnCancel(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	enroll(t, db, c.ID, 5)

	sender := &fakeSender{}
	sender.onSend = func(string) {
		if len(sender.sent) == 0 {
			require.NoError(t, Cancel(db, c.ID))
		}
	}
	d := NewDispatcher(db, sender, VariantRoundRobin)

	report, err := d.Run(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, report.Canceled)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, sender.sent, 1)
}

func TestDispatchRejectsCampaignWithoutVariants(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	require.NoError(t, db.Model(&models.Campaign{}).Where("id = ?", c.ID).
		Update("message1", "").Error)
	enroll(t, db, c.ID, 2)

	d := NewDispatcher(db, &fakeSender{}, VariantRoundRobin)
	_, err := d.Run(context.Background(), c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message variants")
}

func TestDispatchRejectsCampaignWithoutRecipients(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)

	d := NewDispatcher(db, &fakeSender{}, VariantRoundRobin)
	_, err := d.Run(context.Background(), c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")
}

func TestDispatchRefusesTerminalCampaign(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	enroll(t, db, c.ID, 1)
	require.NoError(t, Cancel(db, c.ID))

	d := NewDispatcher(db, &fakeSender{}, VariantRoundRobin)
	_, err := d.Run(context.Background(), c.ID)
	require.Error(t, err)
}

// Round-robin walks the configured variants in order and records the chosen
// slot on each recipient row.
func TestDispatchRoundRobinVariants(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	require.NoError(t, db.Model(&models.Campaign{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
		"message2": "Variant two",
		"message3": "Variant three",
	}).Error)
	enroll(t, db, c.ID, 6)

	sender := &fakeSender{}
	d := NewDispatcher(db, sender, VariantRoundRobin)

	report, err := d.Run(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 6, report.Sent)

	var rows []models.CampaignRecipient
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Order("id ASC").Find(&rows).Error)
	for i, r := range rows {
		assert.Equal(t, i%3+1, r.Variant)
	}
}

func TestDispatchRandomVariantIsRecorded(t *testing.T) {
	db := openTestDB(t)
	c := newCampaign(t, db, 0)
	require.NoError(t, db.Model(&models.Campaign{}).Where("id = ?", c.ID).
		Update("message2", "Variant two").Error)
	enroll(t, db, c.ID, 4)

	d := NewDispatcher(db, &fakeSender{}, VariantRandom)
	_, err := d.Run(context.Background(), c.ID)
	require.NoError(t, err)

	var rows []models.CampaignRecipient
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Find(&rows).Error)
	for _, r := range rows {
		assert.Contains(t, []int{1, 2}, r.Variant)
	}
}
