package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"waticket/internal/campaign"
	"waticket/internal/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduler polls for campaigns whose schedule window has opened and hands
// them to the dispatcher. Each due campaign runs in its own goroutine so
// independent campaigns keep independent delay timers; a running set guards
// against launching the same campaign twice.
type Scheduler struct {
	DB         *gorm.DB
	Dispatcher *campaign.Dispatcher
	Spec       string

	cron    *cron.Cron
	mu      sync.Mutex
	running map[string]bool
}

func NewScheduler(db *gorm.DB, dispatcher *campaign.Dispatcher, spec string) *Scheduler {
	return &Scheduler{
		DB:         db,
		Dispatcher: dispatcher,
		Spec:       spec,
		cron:       cron.New(),
		running:    make(map[string]bool),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.Spec, func() {
		s.LaunchDue(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Scheduler] Campaign poller started (%s)", s.Spec)
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// LaunchDue starts every pending or scheduled campaign whose start time
// has passed. Exposed for the API's immediate-start path and for tests.
func (s *Scheduler) LaunchDue(ctx context.Context) {
	var due []models.Campaign
	err := s.DB.Where("status IN ? AND start_at <= ?",
		[]string{models.CampaignPending, models.CampaignScheduled}, time.Now()).
		Find(&due).Error
	if err != nil {
		log.Printf("[Scheduler] Query for due campaigns failed: %v", err)
		return
	}

	for _, c := range due {
		s.Launch(ctx, c.ID)
	}
}

// Launch runs one campaign's dispatch in the background, once
func (s *Scheduler) Launch(ctx context.Context, campaignID string) {
	s.mu.Lock()
	if s.running[campaignID] {
		s.mu.Unlock()
		return
	}
	s.running[campaignID] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, campaignID)
			s.mu.Unlock()
		}()

		report, err := s.Dispatcher.Run(ctx, campaignID)
		if err != nil {
			log.Printf("[Scheduler] Campaign %s dispatch ended with error: %v", campaignID, err)
			return
		}
		log.Printf("[Scheduler] Campaign %s dispatch done: %d sent, %d failed", campaignID, report.Sent, report.Failed)
	}()
}
