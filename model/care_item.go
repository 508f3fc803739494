package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Care item types.
const (
	ItemTypeProcedure  = "procedure"
	ItemTypeMedication = "medication"
)

// Interval bounds in weeks.
const (
	MinIntervalWeeks = 1
	MaxIntervalWeeks = 52
)

// CareItem is a reusable definition of a recurring procedure or medication.
// @Description Care item information
type CareItem struct {
	gorm.Model
	Name          string `json:"name" gorm:"not null" example:"Catheter change"`
	Code          string `json:"code" gorm:"type:varchar(64);uniqueIndex" example:"CATH01"`
	ItemType      string `json:"item_type" gorm:"type:varchar(20);not null" example:"procedure"`
	IntervalWeeks int    `json:"interval_weeks" gorm:"not null" example:"4"`
	Description   string `json:"description" example:"Replace urinary catheter"`
	Active        bool   `json:"active" gorm:"default:true"`
}

// ListCareItemResponse decorates a care item with its display label.
type ListCareItemResponse struct {
	CareItem
	IntervalLabel string `json:"interval_label" gorm:"-" example:"4주마다"`
}

// ValidItemType reports whether t is a known care item type.
func ValidItemType(t string) bool {
	return t == ItemTypeProcedure || t == ItemTypeMedication
}

// DescribeInterval returns the Korean display string for a recurrence
// interval, matching the labels the care team sees in the product UI.
func DescribeInterval(weeks int) string {
	switch weeks {
	case 1:
		return "매주"
	case 2:
		return "격주"
	case 4:
		return "매월"
	default:
		return fmt.Sprintf("%d주마다", weeks)
	}
}
