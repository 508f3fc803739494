package model

import (
	"time"

	"gorm.io/gorm"
)

// Schedule history statuses.
const (
	HistoryStatusPending   = "pending"
	HistoryStatusCompleted = "completed"
	HistoryStatusSkipped   = "skipped"
)

// ScheduleHistory is a log record of a scheduled occurrence and its outcome.
// At most one pending row exists per (schedule, scheduled date).
type ScheduleHistory struct {
	gorm.Model
	ScheduleID    uint       `json:"schedule_id" gorm:"not null;index:idx_history_schedule_status,priority:1"`
	Status        string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_history_schedule_status,priority:2;index:idx_history_date_status,priority:2"`
	ScheduledDate time.Time  `json:"scheduled_date" gorm:"type:date;not null;index:idx_history_date_status,priority:1"`
	CompletedDate *time.Time `json:"completed_date,omitempty" gorm:"type:date"`
	Notes         string     `json:"notes,omitempty"`
}

// TodayOccurrenceResponse is one row of the today view: a due occurrence
// joined with its patient and care item.
type TodayOccurrenceResponse struct {
	ID            uint      `json:"id"`
	ScheduleID    uint      `json:"schedule_id" gorm:"column:schedule_id"`
	ScheduledDate time.Time `json:"scheduled_date" gorm:"column:scheduled_date"`
	Status        string    `json:"status" gorm:"column:status"`
	PatientID     uint      `json:"patient_id" gorm:"column:patient_id"`
	PatientName   string    `json:"patient_name" gorm:"column:patient_name"`
	ItemName      string    `json:"item_name" gorm:"column:item_name"`
	ItemType      string    `json:"item_type" gorm:"column:item_type"`
	IntervalWeeks int       `json:"interval_weeks" gorm:"column:interval_weeks"`
}
