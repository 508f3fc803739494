package endpoint

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/carecycle/carecycle-api/model"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func seedDashboardFixture(t *testing.T, db *gorm.DB, now time.Time) {
	t.Helper()
	today := now.UTC().Truncate(24 * time.Hour)

	patient := createTestPatient(t, db, "Kim Minji")
	other := createTestPatient(t, db, "Lee Jiho")
	item := createTestCareItem(t, db, "CATH01", 2)

	active := model.PatientSchedule{PatientID: patient.ID, CareItemID: item.ID, NextDueDate: today, Active: true}
	assert.NoError(t, db.Create(&active).Error)
	inactive := model.PatientSchedule{PatientID: other.ID, CareItemID: item.ID, NextDueDate: today, Active: false}
	assert.NoError(t, db.Create(&inactive).Error)

	completedAt := today.Add(9 * time.Hour)
	skippedAt := today.Add(10 * time.Hour)
	yesterdayAt := today.AddDate(0, 0, -1).Add(9 * time.Hour)

	rows := []model.ScheduleHistory{
		// Due today.
		{ScheduleID: active.ID, Status: model.HistoryStatusPending, ScheduledDate: today},
		// Overdue from three days ago.
		{ScheduleID: active.ID, Status: model.HistoryStatusPending, ScheduledDate: today.AddDate(0, 0, -3)},
		// Handled today.
		{ScheduleID: active.ID, Status: model.HistoryStatusCompleted, ScheduledDate: today, CompletedDate: &completedAt},
		{ScheduleID: active.ID, Status: model.HistoryStatusSkipped, ScheduledDate: today, CompletedDate: &skippedAt},
		// Handled yesterday, only visible in the trend.
		{ScheduleID: active.ID, Status: model.HistoryStatusCompleted, ScheduledDate: today.AddDate(0, 0, -1), CompletedDate: &yesterdayAt},
	}
	for i := range rows {
		assert.NoError(t, db.Create(&rows[i]).Error)
	}
}

func TestComputeDashboardStats(t *testing.T) {
	_, db := setupEndpointTest(t)
	now := time.Now()
	seedDashboardFixture(t, db, now)

	stats, err := computeDashboardStats(db, now)
	assert.NoError(t, err)

	assert.EqualValues(t, 2, stats.TotalPatients)
	// Only Kim Minji holds an active schedule.
	assert.EqualValues(t, 1, stats.ActivePatients)
	assert.EqualValues(t, 1, stats.ActiveSchedules)
	// Both pending rows are due today or earlier.
	assert.EqualValues(t, 2, stats.DueToday)
	assert.EqualValues(t, 1, stats.CompletedToday)
	assert.EqualValues(t, 1, stats.SkippedToday)
	assert.EqualValues(t, 1, stats.Overdue)
	// 1 completed out of (1 completed + 1 skipped + 2 still due).
	assert.InDelta(t, 0.25, stats.CompletionRate, 0.0001)

	assert.Len(t, stats.WeeklyTrend, 7)
	todayStat := stats.WeeklyTrend[6]
	assert.Equal(t, now.UTC().Truncate(24*time.Hour).Format(dateLayout), todayStat.Date)
	assert.EqualValues(t, 1, todayStat.Completed)
	assert.EqualValues(t, 1, todayStat.Skipped)
	yesterdayStat := stats.WeeklyTrend[5]
	assert.EqualValues(t, 1, yesterdayStat.Completed)
	assert.EqualValues(t, 0, yesterdayStat.Skipped)
}

func TestComputeDashboardStats_IgnoresDeletedPatients(t *testing.T) {
	_, db := setupEndpointTest(t)
	now := time.Now()
	today := now.UTC().Truncate(24 * time.Hour)

	patient := createTestPatient(t, db, "Kim Minji")
	item := createTestCareItem(t, db, "CATH01", 2)
	schedule := model.PatientSchedule{PatientID: patient.ID, CareItemID: item.ID, NextDueDate: today, Active: true}
	assert.NoError(t, db.Create(&schedule).Error)

	completedAt := today.Add(9 * time.Hour)
	assert.NoError(t, db.Create(&model.ScheduleHistory{
		ScheduleID: schedule.ID, Status: model.HistoryStatusPending, ScheduledDate: today,
	}).Error)
	assert.NoError(t, db.Create(&model.ScheduleHistory{
		ScheduleID: schedule.ID, Status: model.HistoryStatusPending, ScheduledDate: today.AddDate(0, 0, -3),
	}).Error)
	assert.NoError(t, db.Create(&model.ScheduleHistory{
		ScheduleID: schedule.ID, Status: model.HistoryStatusCompleted, ScheduledDate: today, CompletedDate: &completedAt,
	}).Error)

	assert.NoError(t, db.Delete(&patient).Error)

	stats, err := computeDashboardStats(db, now)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, stats.TotalPatients)
	assert.EqualValues(t, 0, stats.ActivePatients)
	assert.EqualValues(t, 0, stats.ActiveSchedules)
	assert.EqualValues(t, 0, stats.DueToday)
	assert.EqualValues(t, 0, stats.Overdue)
	assert.EqualValues(t, 0, stats.CompletedToday)
	assert.EqualValues(t, 0, stats.WeeklyTrend[6].Completed)
}

func TestComputeDashboardStats_IgnoresInactiveSchedulePending(t *testing.T) {
	_, db := setupEndpointTest(t)
	now := time.Now()
	today := now.UTC().Truncate(24 * time.Hour)

	patient := createTestPatient(t, db, "Kim Minji")
	item := createTestCareItem(t, db, "CATH01", 2)
	schedule := model.PatientSchedule{PatientID: patient.ID, CareItemID: item.ID, NextDueDate: today, Active: false}
	assert.NoError(t, db.Create(&schedule).Error)
	assert.NoError(t, db.Create(&model.ScheduleHistory{
		ScheduleID: schedule.ID, Status: model.HistoryStatusPending, ScheduledDate: today,
	}).Error)
	assert.NoError(t, db.Create(&model.ScheduleHistory{
		ScheduleID: schedule.ID, Status: model.HistoryStatusPending, ScheduledDate: today.AddDate(0, 0, -2),
	}).Error)

	stats, err := computeDashboardStats(db, now)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalPatients)
	assert.EqualValues(t, 0, stats.ActivePatients)
	assert.EqualValues(t, 0, stats.ActiveSchedules)
	// A paused schedule's pending rows are not due and not overdue.
	assert.EqualValues(t, 0, stats.DueToday)
	assert.EqualValues(t, 0, stats.Overdue)
}

func TestComputeDashboardStats_EmptyDB(t *testing.T) {
	_, db := setupEndpointTest(t)

	stats, err := computeDashboardStats(db, time.Now())
	assert.NoError(t, err)
	assert.EqualValues(t, 0, stats.TotalPatients)
	assert.EqualValues(t, 0, stats.DueToday)
	assert.Zero(t, stats.CompletionRate)
	assert.Len(t, stats.WeeklyTrend, 7)
}

func TestGetDashboardStats_ServesAndCaches(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.GET("/dashboard/stats", GetDashboardStats)
	InvalidateStatsCache()
	t.Cleanup(InvalidateStatsCache)

	seedDashboardFixture(t, db, time.Now())

	w := performJSONRequest(r, "GET", "/dashboard/stats", nil)
	assertStatus(t, w, http.StatusOK)
	resp := parseAPIResponse(t, w)
	data := resp["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["total_patients"])

	// A new patient is invisible until the cache expires or is bypassed.
	createTestPatient(t, db, "Park Seojun")

	w = performJSONRequest(r, "GET", "/dashboard/stats", nil)
	resp = parseAPIResponse(t, w)
	data = resp["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["total_patients"])

	w = performJSONRequest(r, "GET", "/dashboard/stats?refresh=true", nil)
	resp = parseAPIResponse(t, w)
	data = resp["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["total_patients"])
}

func TestCompleteOccurrence_InvalidatesStatsCache(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.GET("/dashboard/stats", GetDashboardStats)
	r.POST("/schedule/:id/complete", CompleteOccurrence)
	InvalidateStatsCache()
	t.Cleanup(InvalidateStatsCache)

	patient := createTestPatient(t, db, "Kim Minji")
	item := createTestCareItem(t, db, "CATH01", 2)
	schedule := model.PatientSchedule{
		PatientID:   patient.ID,
		CareItemID:  item.ID,
		NextDueDate: time.Now().UTC().Truncate(24 * time.Hour),
		Active:      true,
	}
	assert.NoError(t, db.Create(&schedule).Error)

	w := performJSONRequest(r, "GET", "/dashboard/stats", nil)
	resp := parseAPIResponse(t, w)
	data := resp["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["completed_today"])

	w = performJSONRequest(r, "POST", fmt.Sprintf("/schedule/%d/complete", schedule.ID), nil)
	assertStatus(t, w, http.StatusOK)

	// The write dropped the cached stats, so the next read recomputes.
	w = performJSONRequest(r, "GET", "/dashboard/stats", nil)
	resp = parseAPIResponse(t, w)
	data = resp["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["completed_today"])
}
