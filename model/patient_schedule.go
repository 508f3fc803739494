package model

import (
	"time"

	"gorm.io/gorm"
)

// PatientSchedule binds a patient to a care item with a computed next due
// date. Only one active binding may exist per (patient, care item) pair.
type PatientSchedule struct {
	gorm.Model
	PatientID   uint      `json:"patient_id" gorm:"not null;index:idx_schedule_patient_item,priority:1"`
	CareItemID  uint      `json:"care_item_id" gorm:"not null;index:idx_schedule_patient_item,priority:2"`
	NextDueDate time.Time `json:"next_due_date" gorm:"type:date;not null;index"`
	Active      bool      `json:"active" gorm:"default:true;index"`
	Notes       string    `json:"notes,omitempty"`
}

// ListScheduleResponse carries a schedule row joined with its patient and
// care item display fields.
type ListScheduleResponse struct {
	PatientSchedule
	PatientName   string `json:"patient_name" gorm:"column:patient_name" example:"Kim Minji"`
	ItemName      string `json:"item_name" gorm:"column:item_name" example:"Catheter change"`
	ItemType      string `json:"item_type" gorm:"column:item_type" example:"procedure"`
	IntervalWeeks int    `json:"interval_weeks" gorm:"column:interval_weeks" example:"4"`
}

// RollForward returns the due date that follows base for the given
// recurrence interval. Dates are normalized to midnight UTC.
func RollForward(base time.Time, intervalWeeks int) time.Time {
	d := base.UTC().Truncate(24 * time.Hour)
	return d.AddDate(0, 0, intervalWeeks*7)
}
