package endpoint

import (
	"fmt"
	"strconv"
	"time"

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/middleware"
	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type createScheduleRequest struct {
	PatientID  uint   `json:"patient_id" example:"1"`
	CareItemID uint   `json:"care_item_id" example:"1"`
	StartDate  string `json:"start_date,omitempty" example:"2026-01-15"`
	Notes      string `json:"notes,omitempty"`
}

type updateScheduleRequest struct {
	Active *bool  `json:"active,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type occurrenceRequest struct {
	Date  string `json:"date,omitempty" example:"2026-01-15"`
	Notes string `json:"notes,omitempty"`
}

func parseDateOrToday(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}

// CreateSchedule godoc
// @Summary      Bind a patient to a care item
// @Description  Create a recurring schedule; the first due date is the start date plus the item interval
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body createScheduleRequest true "Schedule binding"
// @Success      201 {object} util.APIResponse{data=model.PatientSchedule} "Schedule created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Active schedule already exists"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule [post]
func CreateSchedule(c *gin.Context) {
	req := createScheduleRequest{}
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	if req.PatientID == 0 || req.CareItemID == 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "patient_id and care_item_id are required",
			Err: fmt.Errorf("invalid payload"),
		})
		return
	}

	startDate, err := parseDateOrToday(req.StartDate)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid start date", Err: err})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var schedule model.PatientSchedule
	err = db.Transaction(func(tx *gorm.DB) error {
		var patient model.Patient
		if err := tx.First(&patient, req.PatientID).Error; err != nil {
			return fmt.Errorf("patient not found: %w", err)
		}

		var item model.CareItem
		if err := tx.First(&item, req.CareItemID).Error; err != nil {
			return fmt.Errorf("care item not found: %w", err)
		}
		if !item.Active {
			return fmt.Errorf("care item %s is inactive", item.Code)
		}

		// Duplicate active bindings are rejected inside the transaction so
		// concurrent creates cannot both pass the check.
		var existing int64
		if err := tx.Model(&model.PatientSchedule{}).
			Where("patient_id = ? AND care_item_id = ? AND active = ?", req.PatientID, req.CareItemID, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("active schedule already exists for this patient and care item")
		}

		schedule = model.PatientSchedule{
			PatientID:   req.PatientID,
			CareItemID:  req.CareItemID,
			NextDueDate: model.RollForward(startDate, item.IntervalWeeks),
			Active:      true,
			Notes:       req.Notes,
		}
		return tx.Create(&schedule).Error
	})
	if err != nil {
		util.RespondWithError(c, "Failed to create schedule", err)
		return
	}

	util.CallSuccessCreated(c, util.APISuccessParams{
		Msg:  "Schedule created",
		Data: schedule,
	})
}

func fetchSchedules(db *gorm.DB, limit, offset int, patientID uint, activeOnly bool) ([]model.ListScheduleResponse, int64, error) {
	var schedules []model.ListScheduleResponse
	var total int64

	query := db.Table("patient_schedules").
		Joins("JOIN patients ON patients.id = patient_schedules.patient_id").
		Joins("JOIN care_items ON care_items.id = patient_schedules.care_item_id").
		Select("patient_schedules.*, patients.full_name as patient_name, care_items.name as item_name, care_items.item_type as item_type, care_items.interval_weeks as interval_weeks").
		Where("patients.deleted_at IS NULL AND patient_schedules.deleted_at IS NULL").
		Order("patient_schedules.next_due_date ASC")
	if patientID != 0 {
		query = query.Where("patient_schedules.patient_id = ?", patientID)
	}
	if activeOnly {
		query = query.Where("patient_schedules.active = ?", true)
	}

	countQuery := db.Table("patient_schedules").
		Joins("JOIN patients ON patients.id = patient_schedules.patient_id").
		Where("patients.deleted_at IS NULL AND patient_schedules.deleted_at IS NULL")
	if patientID != 0 {
		countQuery = countQuery.Where("patient_schedules.patient_id = ?", patientID)
	}
	if activeOnly {
		countQuery = countQuery.Where("patient_schedules.active = ?", true)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&schedules).Error; err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// ListSchedules godoc
// @Summary      List patient schedules
// @Description  Get schedule bindings joined with patient and care item fields
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Param        patient_id query int false "Filter by patient"
// @Param        active query bool false "Only active schedules"
// @Success      200 {object} util.APIResponse{data=object} "Schedules retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule [get]
func ListSchedules(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	patientID, _ := strconv.Atoi(c.Query("patient_id"))
	activeOnly := c.Query("active") == "true"

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	schedules, total, err := fetchSchedules(db, limit, offset, uint(patientID), activeOnly)
	if err != nil {
		util.RespondWithError(c, "Failed to retrieve schedules", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Schedules retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(schedules), "schedules": schedules},
	})
}

func fetchTodayOccurrences(db *gorm.DB, today time.Time) ([]model.TodayOccurrenceResponse, error) {
	var occurrences []model.TodayOccurrenceResponse
	err := db.Table("schedule_histories").
		Joins("JOIN patient_schedules ON patient_schedules.id = schedule_histories.schedule_id").
		Joins("JOIN patients ON patients.id = patient_schedules.patient_id").
		Joins("JOIN care_items ON care_items.id = patient_schedules.care_item_id").
		Select("schedule_histories.id, schedule_histories.schedule_id, schedule_histories.scheduled_date, schedule_histories.status, patients.id as patient_id, patients.full_name as patient_name, care_items.name as item_name, care_items.item_type as item_type, care_items.interval_weeks as interval_weeks").
		Where("schedule_histories.status = ?", model.HistoryStatusPending).
		Where("schedule_histories.scheduled_date <= ?", today).
		Where("schedule_histories.deleted_at IS NULL AND patients.deleted_at IS NULL AND patient_schedules.deleted_at IS NULL").
		Where("patient_schedules.active = ?", true).
		Order("schedule_histories.scheduled_date ASC").
		Find(&occurrences).Error
	return occurrences, err
}

// TodaySchedule godoc
// @Summary      Today's due occurrences
// @Description  Pending occurrences due today or earlier, joined with patient and care item
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse{data=object} "Today's schedule retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule/today [get]
func TodaySchedule(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	occurrences, err := fetchTodayOccurrences(db, today)
	if err != nil {
		util.RespondWithError(c, "Failed to retrieve today's schedule", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Today's schedule retrieved",
		Data: map[string]interface{}{"date": today.Format(dateLayout), "total": len(occurrences), "occurrences": occurrences},
	})
}

func loadScheduleWithItem(tx *gorm.DB, id string) (model.PatientSchedule, model.CareItem, error) {
	var schedule model.PatientSchedule
	if err := tx.First(&schedule, id).Error; err != nil {
		return schedule, model.CareItem{}, fmt.Errorf("schedule not found: %w", err)
	}
	var item model.CareItem
	if err := tx.First(&item, schedule.CareItemID).Error; err != nil {
		return schedule, item, fmt.Errorf("care item not found: %w", err)
	}
	return schedule, item, nil
}

// resolvePendingOccurrence returns the earliest pending occurrence for a
// schedule, materializing one at the schedule's next due date if the worker
// has not created it yet. Materialization is bounded by the activation
// window: once a cycle has been handled the due date sits weeks ahead, so a
// retried complete/skip finds nothing pending and conflicts instead of
// consuming the next occurrence early.
func resolvePendingOccurrence(tx *gorm.DB, schedule model.PatientSchedule, status string, windowDays int) (model.ScheduleHistory, error) {
	var occ model.ScheduleHistory
	err := tx.Where("schedule_id = ? AND status = ?", schedule.ID, model.HistoryStatusPending).
		Order("scheduled_date ASC").
		First(&occ).Error
	if err == nil {
		return occ, nil
	}
	if err != gorm.ErrRecordNotFound {
		return occ, err
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if schedule.NextDueDate.After(today.AddDate(0, 0, windowDays)) {
		return occ, util.ErrOccurrenceNotPending(status)
	}

	occ = model.ScheduleHistory{
		ScheduleID:    schedule.ID,
		Status:        model.HistoryStatusPending,
		ScheduledDate: schedule.NextDueDate,
	}
	if err := tx.Create(&occ).Error; err != nil {
		return occ, err
	}
	return occ, nil
}

// closeOccurrence transitions a pending occurrence to its final status with
// an optimistic guard: a concurrent close of the same row loses here.
func closeOccurrence(tx *gorm.DB, occ model.ScheduleHistory, status string, completedDate time.Time, notes string) error {
	updates := map[string]interface{}{
		"status":         status,
		"completed_date": completedDate,
	}
	if notes != "" {
		updates["notes"] = notes
	}
	res := tx.Model(&model.ScheduleHistory{}).
		Where("id = ? AND status = ?", occ.ID, model.HistoryStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrOccurrenceNotPending(status)
	}
	return nil
}

func closeOccurrenceAndRoll(c *gin.Context, status string) {
	req := occurrenceRequest{}
	if c.Request.ContentLength > 0 && !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}

	actual, err := parseDateOrToday(req.Date)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid date", Err: err})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	id := c.Param("id")
	windowDays := config.LoadConfig().ActivationWindowDays
	var schedule model.PatientSchedule
	var occ model.ScheduleHistory

	err = db.Transaction(func(tx *gorm.DB) error {
		var item model.CareItem
		schedule, item, err = loadScheduleWithItem(tx, id)
		if err != nil {
			return err
		}
		if !schedule.Active {
			return fmt.Errorf("schedule is inactive")
		}

		occ, err = resolvePendingOccurrence(tx, schedule, status, windowDays)
		if err != nil {
			return err
		}

		if err := closeOccurrence(tx, occ, status, actual, req.Notes); err != nil {
			return err
		}

		// Completion rolls the cadence from the actual date; a skip rolls
		// from the scheduled date so the cadence does not drift.
		base := actual
		if status == model.HistoryStatusSkipped {
			base = occ.ScheduledDate
		}
		schedule.NextDueDate = model.RollForward(base, item.IntervalWeeks)
		return tx.Save(&schedule).Error
	})
	if err != nil {
		util.RespondWithError(c, "Failed to update occurrence", err)
		return
	}

	event := "schedule.completed"
	auditType := util.EventScheduleCompleted
	if status == model.HistoryStatusSkipped {
		event = "schedule.skipped"
		auditType = util.EventScheduleSkipped
	}
	publishDashboardEvent(event, map[string]interface{}{
		"schedule_id":   schedule.ID,
		"occurrence_id": occ.ID,
		"next_due_date": schedule.NextDueDate.Format(dateLayout),
	})
	userID, _ := middleware.GetUserID(c)
	util.LogAuditEvent(util.AuditEvent{
		EventType: auditType,
		UserID:    fmt.Sprintf("%d", userID),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Message:   fmt.Sprintf("Occurrence %d on schedule %d marked %s", occ.ID, schedule.ID, status),
	})

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Occurrence " + status,
		Data: map[string]interface{}{
			"schedule_id":   schedule.ID,
			"occurrence_id": occ.ID,
			"status":        status,
			"next_due_date": schedule.NextDueDate.Format(dateLayout),
		},
	})
}

// CompleteOccurrence godoc
// @Summary      Complete a due occurrence
// @Description  Mark the schedule's pending occurrence completed and roll the next due date forward from the actual date
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Schedule ID"
// @Param        request body occurrenceRequest false "Actual completion date and notes"
// @Success      200 {object} util.APIResponse "Occurrence completed"
// @Failure      400 {object} util.APIResponse "Invalid request or inactive schedule"
// @Failure      404 {object} util.APIResponse "Schedule not found"
// @Failure      409 {object} util.APIResponse "Occurrence already handled"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule/{id}/complete [post]
func CompleteOccurrence(c *gin.Context) {
	closeOccurrenceAndRoll(c, model.HistoryStatusCompleted)
}

// SkipOccurrence godoc
// @Summary      Skip a due occurrence
// @Description  Mark the schedule's pending occurrence skipped and roll the next due date forward from the scheduled date
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Schedule ID"
// @Param        request body occurrenceRequest false "Skip date and notes"
// @Success      200 {object} util.APIResponse "Occurrence skipped"
// @Failure      400 {object} util.APIResponse "Invalid request or inactive schedule"
// @Failure      404 {object} util.APIResponse "Schedule not found"
// @Failure      409 {object} util.APIResponse "Occurrence already handled"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule/{id}/skip [post]
func SkipOccurrence(c *gin.Context) {
	closeOccurrenceAndRoll(c, model.HistoryStatusSkipped)
}

// UpdateSchedule godoc
// @Summary      Update a schedule binding
// @Description  Toggle the active flag or edit notes
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Schedule ID"
// @Param        request body updateScheduleRequest true "Updated schedule fields"
// @Success      200 {object} util.APIResponse{data=model.PatientSchedule} "Schedule updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Schedule not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule/{id} [patch]
func UpdateSchedule(c *gin.Context) {
	req := updateScheduleRequest{}
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var schedule model.PatientSchedule
	if err := db.First(&schedule, c.Param("id")).Error; err != nil {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Schedule not found", Err: err})
		return
	}

	if req.Active != nil {
		schedule.Active = *req.Active
	}
	if req.Notes != "" {
		schedule.Notes = req.Notes
	}

	if err := db.Save(&schedule).Error; err != nil {
		util.RespondWithError(c, "Failed to update schedule", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Schedule updated",
		Data: schedule,
	})
}

// GetScheduleHistory godoc
// @Summary      Schedule history
// @Description  Occurrence log for one schedule, newest first
// @Tags         Schedule
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Schedule ID"
// @Param        limit query int false "Limit number of results"
// @Success      200 {object} util.APIResponse{data=object} "History retrieved"
// @Failure      404 {object} util.APIResponse "Schedule not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /schedule/{id}/history [get]
func GetScheduleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var schedule model.PatientSchedule
	if err := db.First(&schedule, c.Param("id")).Error; err != nil {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Schedule not found", Err: err})
		return
	}

	query := db.Where("schedule_id = ?", schedule.ID).Order("scheduled_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var history []model.ScheduleHistory
	if err := query.Find(&history).Error; err != nil {
		util.RespondWithError(c, "Failed to retrieve schedule history", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "History retrieved",
		Data: map[string]interface{}{"schedule_id": schedule.ID, "total": len(history), "history": history},
	})
}
