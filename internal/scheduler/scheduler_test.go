package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"waticket/internal/campaign"
	"waticket/internal/database"
	"waticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type countingSender struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSender) SendMessage(context.Context, string, string, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return fmt.Sprintf("msg-%d", s.calls), nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedDueCampaign(t *testing.T, db *gorm.DB, id string, start time.Time, status string) {
	t.Helper()
	c := models.Campaign{
		ID:        id,
		Name:      "Scheduled blast",
		StartAt:   start,
		Message1:  "Hello",
		SessionID: "session-1",
		Status:    status,
	}
	require.NoError(t, db.Create(&c).Error)

	contact := models.Contact{Name: "Ana", Number: "55" + id}
	require.NoError(t, db.Create(&contact).Error)
	require.NoError(t, db.Create(&models.CampaignRecipient{CampaignID: id, ContactID: contact.ID}).Error)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestLaunchDueStartsOpenWindows(t *testing.T) {
	db := openTestDB(t)
	seedDueCampaign(t, db, "due-1", time.Now().Add(-time.Minute), models.CampaignScheduled)
	seedDueCampaign(t, db, "future-1", time.Now().Add(time.Hour), models.CampaignScheduled)

	sender := &countingSender{}
	s := NewScheduler(db, campaign.NewDispatcher(db, sender, campaign.VariantRoundRobin), "@every 1m")

	s.LaunchDue(context.Background())

	waitFor(t, func() bool { return sender.count() == 1 })

	// The future campaign was not touched
	var pending int64
	require.NoError(t, db.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND ack = ?", "future-1", models.AckNone).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestLaunchGuardsAgainstDoubleStart(t *testing.T) {
	db := openTestDB(t)
	seedDueCampaign(t, db, "due-2", time.Now().Add(-time.Minute), models.CampaignPending)

	sender := &countingSender{}
	s := NewScheduler(db, campaign.NewDispatcher(db, sender, campaign.VariantRoundRobin), "@every 1m")

	// Hold the running-set entry while trying to launch again
	s.mu.Lock()
	s.running["due-2"] = true
	s.mu.Unlock()

	s.Launch(context.Background(), "due-2")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sender.count())

	s.mu.Lock()
	delete(s.running, "due-2")
	s.mu.Unlock()

	s.Launch(context.Background(), "due-2")
	waitFor(t, func() bool { return sender.count() == 1 })
}
