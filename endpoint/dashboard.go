package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
	cache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// eventChannel is the Redis pub/sub channel carrying dashboard events.
const eventChannel = "carecycle:events"

var errRedisUnavailable = errors.New("redis client not initialized")

const statsCacheKey = "dashboard:stats"

var statsCache = cache.New(30*time.Second, time.Minute)

// DashboardStats aggregates the numbers shown on the care team dashboard.
type DashboardStats struct {
	TotalPatients   int64            `json:"total_patients"`
	ActivePatients  int64            `json:"active_patients"`
	ActiveSchedules int64            `json:"active_schedules"`
	DueToday        int64            `json:"due_today"`
	CompletedToday  int64            `json:"completed_today"`
	SkippedToday    int64            `json:"skipped_today"`
	Overdue         int64            `json:"overdue"`
	CompletionRate  float64          `json:"completion_rate"`
	WeeklyTrend     []DailyTrendStat `json:"weekly_trend"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// DailyTrendStat is one day of the 7-day completion trend.
type DailyTrendStat struct {
	Date      string `json:"date"`
	Completed int64  `json:"completed"`
	Skipped   int64  `json:"skipped"`
}

// liveSchedules scopes schedule counts to bindings whose patient still
// exists; liveHistory does the same for occurrence counts. Soft-deleted
// patients and schedules must not leak into the dashboard.
func liveSchedules(db *gorm.DB) *gorm.DB {
	return db.Model(&model.PatientSchedule{}).
		Joins("JOIN patients ON patients.id = patient_schedules.patient_id").
		Where("patients.deleted_at IS NULL").
		Where("patient_schedules.active = ?", true)
}

func liveHistory(db *gorm.DB) *gorm.DB {
	return db.Model(&model.ScheduleHistory{}).
		Joins("JOIN patient_schedules ON patient_schedules.id = schedule_histories.schedule_id").
		Joins("JOIN patients ON patients.id = patient_schedules.patient_id").
		Where("patients.deleted_at IS NULL AND patient_schedules.deleted_at IS NULL")
}

func computeDashboardStats(db *gorm.DB, now time.Time) (DashboardStats, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	tomorrow := today.AddDate(0, 0, 1)

	stats := DashboardStats{GeneratedAt: now, WeeklyTrend: make([]DailyTrendStat, 0, 7)}

	if err := db.Model(&model.Patient{}).Count(&stats.TotalPatients).Error; err != nil {
		return stats, err
	}
	if err := liveSchedules(db).
		Distinct("patient_schedules.patient_id").
		Count(&stats.ActivePatients).Error; err != nil {
		return stats, err
	}
	if err := liveSchedules(db).Count(&stats.ActiveSchedules).Error; err != nil {
		return stats, err
	}
	// Pending counts mirror the today view: only active schedules can be due.
	if err := liveHistory(db).
		Where("patient_schedules.active = ?", true).
		Where("schedule_histories.status = ? AND schedule_histories.scheduled_date <= ?", model.HistoryStatusPending, today).
		Count(&stats.DueToday).Error; err != nil {
		return stats, err
	}
	if err := liveHistory(db).
		Where("schedule_histories.status = ? AND schedule_histories.completed_date >= ? AND schedule_histories.completed_date < ?",
			model.HistoryStatusCompleted, today, tomorrow).
		Count(&stats.CompletedToday).Error; err != nil {
		return stats, err
	}
	if err := liveHistory(db).
		Where("schedule_histories.status = ? AND schedule_histories.completed_date >= ? AND schedule_histories.completed_date < ?",
			model.HistoryStatusSkipped, today, tomorrow).
		Count(&stats.SkippedToday).Error; err != nil {
		return stats, err
	}
	if err := liveHistory(db).
		Where("patient_schedules.active = ?", true).
		Where("schedule_histories.status = ? AND schedule_histories.scheduled_date < ?", model.HistoryStatusPending, today).
		Count(&stats.Overdue).Error; err != nil {
		return stats, err
	}

	handledToday := stats.CompletedToday + stats.SkippedToday
	if denominator := handledToday + stats.DueToday; denominator > 0 {
		stats.CompletionRate = float64(stats.CompletedToday) / float64(denominator)
	}

	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		next := day.AddDate(0, 0, 1)
		var completed, skipped int64
		if err := liveHistory(db).
			Where("schedule_histories.status = ? AND schedule_histories.completed_date >= ? AND schedule_histories.completed_date < ?",
				model.HistoryStatusCompleted, day, next).
			Count(&completed).Error; err != nil {
			return stats, err
		}
		if err := liveHistory(db).
			Where("schedule_histories.status = ? AND schedule_histories.completed_date >= ? AND schedule_histories.completed_date < ?",
				model.HistoryStatusSkipped, day, next).
			Count(&skipped).Error; err != nil {
			return stats, err
		}
		stats.WeeklyTrend = append(stats.WeeklyTrend, DailyTrendStat{
			Date:      day.Format(dateLayout),
			Completed: completed,
			Skipped:   skipped,
		})
	}

	return stats, nil
}

// GetDashboardStats godoc
// @Summary      Dashboard statistics
// @Description  Aggregate counts and the 7-day completion trend; cached for 30 seconds
// @Tags         Dashboard
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        refresh query bool false "Bypass the stats cache"
// @Success      200 {object} util.APIResponse{data=DashboardStats} "Stats retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /dashboard/stats [get]
func GetDashboardStats(c *gin.Context) {
	if c.Query("refresh") != "true" {
		if cached, ok := statsCache.Get(statsCacheKey); ok {
			util.CallSuccessOK(c, util.APISuccessParams{
				Msg:  "Stats retrieved",
				Data: cached.(DashboardStats),
			})
			return
		}
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	stats, err := computeDashboardStats(db, time.Now())
	if err != nil {
		util.RespondWithError(c, "Failed to compute dashboard stats", err)
		return
	}
	statsCache.Set(statsCacheKey, stats, cache.DefaultExpiration)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Stats retrieved",
		Data: stats,
	})
}

// InvalidateStatsCache drops the cached dashboard stats. Called after writes
// that change the numbers so the next read recomputes.
func InvalidateStatsCache() {
	statsCache.Delete(statsCacheKey)
}

// publishDashboardEvent fans an event out to dashboard subscribers over the
// Redis channel. Best-effort: a missing Redis client drops the event, which
// only delays the dashboard until its next poll.
func publishDashboardEvent(event string, payload map[string]interface{}) {
	InvalidateStatsCache()

	rdb := config.GetRedisClient()
	if rdb == nil {
		return
	}
	body := map[string]interface{}{
		"event":   event,
		"payload": payload,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(body)
	if err != nil {
		return
	}
	_ = rdb.Publish(context.Background(), eventChannel, b).Err()
}

// StreamDashboardEvents godoc
// @Summary      Dashboard event stream
// @Description  Server-sent events relayed from the Redis event channel; clients resubscribe on disconnect
// @Tags         Dashboard
// @Produce      text/event-stream
// @Security     SessionToken
// @Success      200 {string} string "event stream"
// @Failure      500 {object} util.APIResponse "Realtime channel unavailable"
// @Router       /dashboard/stream [get]
func StreamDashboardEvents(c *gin.Context) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Realtime channel unavailable",
			Err: errRedisUnavailable,
		})
		return
	}

	ctx := c.Request.Context()
	sub := rdb.Subscribe(ctx, eventChannel)
	defer sub.Close()
	ch := sub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Heartbeat keeps intermediaries from closing the idle stream.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", msg.Payload)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
