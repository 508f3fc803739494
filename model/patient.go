package model

import "gorm.io/gorm"

// Patient represents a person receiving recurring care.
// @Description Patient information
type Patient struct {
	gorm.Model
	FullName      string `json:"full_name" gorm:"not null;index" example:"Kim Minji"`
	Gender        string `json:"gender" example:"Female"`
	Age           int    `json:"age" example:"72"`
	Address       string `json:"address" example:"123 Main St"`
	PhoneNumber   string `json:"phone_number" example:"010-1234-5678"`
	HealthHistory string `json:"health_history" example:"Diabetes,Hypertension"`
	Email         string `json:"email,omitempty" example:"minji@example.com"`
	Password      string `json:"-"`
}

// UpdatePatientRequest carries the mutable patient fields for PATCH requests.
type UpdatePatientRequest struct {
	FullName      string   `json:"full_name,omitempty"`
	Gender        string   `json:"gender,omitempty"`
	Age           int      `json:"age,omitempty"`
	Address       string   `json:"address,omitempty"`
	PhoneNumbers  []string `json:"phone_number,omitempty"`
	HealthHistory string   `json:"health_history,omitempty"`
	Email         string   `json:"email,omitempty"`
	Password      string   `json:"password,omitempty"`
}
