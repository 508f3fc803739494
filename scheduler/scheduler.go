// Package scheduler runs the background worker that materializes upcoming
// schedule occurrences so the today view and dashboard always have pending
// rows to work against.
package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/model"
	"gorm.io/gorm"
)

const eventChannel = "carecycle:events"

// Scheduler periodically activates upcoming occurrences for active patient
// schedules inside the configured activation window.
type Scheduler struct {
	db         *gorm.DB
	interval   time.Duration
	windowDays int
}

// New builds a Scheduler from the loaded configuration.
func New(db *gorm.DB, cfg *config.Config) *Scheduler {
	return &Scheduler{
		db:         db,
		interval:   time.Duration(cfg.SchedulerIntervalMinutes) * time.Minute,
		windowDays: cfg.ActivationWindowDays,
	}
}

// Run executes one activation pass immediately and then on every tick until
// the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.ActivateUpcoming(); err != nil {
		log.Printf("scheduler: activation pass failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopping")
			return
		case <-ticker.C:
			if err := s.ActivateUpcoming(); err != nil {
				log.Printf("scheduler: activation pass failed: %v", err)
			}
		}
	}
}

// ActivateUpcoming materializes one pending occurrence per active schedule
// whose next due date falls within the activation window. The pass is
// idempotent: an existing pending row for the same schedule and date is left
// alone.
func (s *Scheduler) ActivateUpcoming() error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	activateUntil := today.AddDate(0, 0, s.windowDays)

	var schedules []model.PatientSchedule
	if err := s.db.
		Where("active = ?", true).
		Where("next_due_date <= ?", activateUntil).
		Find(&schedules).Error; err != nil {
		return err
	}

	created := 0
	for _, schedule := range schedules {
		ok, err := s.materializeOccurrence(schedule)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		log.Printf("scheduler: materialized %d pending occurrences", created)
		s.publishStatsRefresh(created)
	}
	return nil
}

// materializeOccurrence creates the pending history row for a schedule's next
// due date unless one already exists. Reports whether a row was created.
func (s *Scheduler) materializeOccurrence(schedule model.PatientSchedule) (bool, error) {
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.ScheduleHistory{}).
			Where("schedule_id = ? AND scheduled_date = ? AND status = ?",
				schedule.ID, schedule.NextDueDate, model.HistoryStatusPending).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		created = true
		return tx.Create(&model.ScheduleHistory{
			ScheduleID:    schedule.ID,
			Status:        model.HistoryStatusPending,
			ScheduledDate: schedule.NextDueDate,
		}).Error
	})
	return created, err
}

func (s *Scheduler) publishStatsRefresh(created int) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"event":   "stats.refresh",
		"payload": map[string]interface{}{"materialized": created},
		"ts":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := rdb.Publish(context.Background(), eventChannel, body).Err(); err != nil {
		log.Printf("scheduler: failed to publish stats refresh: %v", err)
	}
}
