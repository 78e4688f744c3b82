package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/store"
)

// JobTypeBackup is the queue job type submitted when a schedule fires.
const JobTypeBackup = "backup"

// Scheduler arms recurring backup triggers from stored schedules. It owns
// the schedule-to-trigger mapping; re-arming a schedule atomically replaces
// any prior trigger for the same id.
type Scheduler struct {
	cron      *cron.Cron
	schedules *store.ScheduleStore
	backups   *store.BackupStore
	queue     queue.Queue

	mu      sync.Mutex
	entries map[string]cron.EntryID

	now func() time.Time
}

func New(schedules *store.ScheduleStore, backups *store.BackupStore, q queue.Queue) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		schedules: schedules,
		backups:   backups,
		queue:     q,
		entries:   make(map[string]cron.EntryID),
		now:       time.Now,
	}
}

// Start arms every enabled schedule and begins firing triggers.
func (s *Scheduler) Start() error {
	enabled, err := s.schedules.ListEnabled()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range enabled {
		if err := s.ScheduleBackup(schedule); err != nil {
			logging.L().Error("schedule_arm_failed", "schedule_id", schedule.ID, "error", err)
		}
	}

	s.cron.Start()
	logging.L().Info("scheduler_started", "armed", len(s.entries))
	return nil
}

// Stop halts the trigger loop, waiting for a running trigger to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleBackup (re)arms one schedule, replacing any existing trigger for
// its id. An invalid derived expression is rejected, never ignored.
func (s *Scheduler) ScheduleBackup(schedule *models.BackupSchedule) error {
	expr, err := BuildCronExpr(schedule)
	if err != nil {
		return err
	}

	scheduleID := schedule.ID
	entryID, err := s.cron.AddFunc(expr, func() {
		s.trigger(scheduleID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	if old, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(old)
	}
	s.entries[scheduleID] = entryID
	s.mu.Unlock()

	// Persist the computed next run so reads reflect the armed trigger
	// before it ever fires.
	nextRun := CalculateNextRun(schedule, s.now())
	if err := s.schedules.SetNextRun(scheduleID, &nextRun); err != nil {
		logging.L().Error("schedule_next_run_persist_failed", "schedule_id", scheduleID, "error", err)
	}

	logging.L().Info("schedule_armed", "schedule_id", scheduleID, "cron", expr)
	return nil
}

// UnscheduleBackup disarms a schedule's trigger if one exists.
func (s *Scheduler) UnscheduleBackup(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
		if err := s.schedules.SetNextRun(scheduleID, nil); err != nil {
			logging.L().Error("schedule_next_run_clear_failed", "schedule_id", scheduleID, "error", err)
		}
		logging.L().Info("schedule_disarmed", "schedule_id", scheduleID)
	}
}

// Armed reports whether a trigger currently exists for the schedule.
func (s *Scheduler) Armed(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[scheduleID]
	return ok
}

// trigger fires one scheduled backup: create the pending backup row, hand
// the work to the queue, and stamp the schedule's bookkeeping. A failed
// enqueue records failure but leaves the schedule armed.
func (s *Scheduler) trigger(scheduleID string) {
	schedule, err := s.schedules.Get(scheduleID)
	if err != nil {
		logging.L().Error("schedule_trigger_load_failed", "schedule_id", scheduleID, "error", err)
		return
	}

	ranAt := s.now()
	nextRun := CalculateNextRun(schedule, ranAt)

	backup := &models.Backup{
		ServerID:  schedule.ServerID,
		Type:      "scheduled",
		CreatedBy: "scheduler",
		Metadata: map[string]any{
			"schedule_id":  schedule.ID,
			"source_paths": schedule.SourcePaths,
			"compression":  schedule.Compression,
			"encryption":   schedule.Encryption,
		},
	}
	if err := s.backups.Create(backup); err != nil {
		logging.L().Error("schedule_backup_create_failed", "schedule_id", scheduleID, "error", err)
		s.recordRun(scheduleID, ranAt, "failure", nextRun)
		return
	}

	// Row exists even if enqueue fails, so the miss stays inspectable.
	_, err = s.queue.Submit(JobTypeBackup, map[string]any{
		"backup_id":   backup.ID,
		"server_id":   schedule.ServerID,
		"schedule_id": schedule.ID,
		"created_by":  backup.CreatedBy,
	})
	if err != nil {
		logging.L().Error("schedule_enqueue_failed", "schedule_id", scheduleID, "error", err)
		s.recordRun(scheduleID, ranAt, "failure", nextRun)
		return
	}

	s.recordRun(scheduleID, ranAt, "success", nextRun)
}

func (s *Scheduler) recordRun(scheduleID string, ranAt time.Time, status string, nextRun time.Time) {
	if err := s.schedules.RecordRun(scheduleID, ranAt, status, nextRun); err != nil {
		logging.L().Error("schedule_record_run_failed", "schedule_id", scheduleID, "error", err)
	}
}

// BuildCronExpr derives the cron expression for a schedule. The mapping is
// deterministic: daily fires every day at the hour, weekly on one weekday,
// monthly on one day of month.
func BuildCronExpr(schedule *models.BackupSchedule) (string, error) {
	if schedule.Hour < 0 || schedule.Hour > 23 {
		return "", fmt.Errorf("hour %d out of range", schedule.Hour)
	}

	switch schedule.Type {
	case models.ScheduleDaily:
		return fmt.Sprintf("0 %d * * *", schedule.Hour), nil
	case models.ScheduleWeekly:
		if schedule.DayOfWeek == nil || *schedule.DayOfWeek < 0 || *schedule.DayOfWeek > 6 {
			return "", fmt.Errorf("weekly schedule requires day_of_week 0-6")
		}
		return fmt.Sprintf("0 %d * * %d", schedule.Hour, *schedule.DayOfWeek), nil
	case models.ScheduleMonthly:
		if schedule.DayOfMonth == nil || *schedule.DayOfMonth < 1 || *schedule.DayOfMonth > 28 {
			return "", fmt.Errorf("monthly schedule requires day_of_month 1-28")
		}
		return fmt.Sprintf("0 %d %d * *", schedule.Hour, *schedule.DayOfMonth), nil
	default:
		return "", fmt.Errorf("unknown schedule type: %s", schedule.Type)
	}
}

// CalculateNextRun returns the next occurrence of a schedule strictly
// after now: the current cycle's occurrence if it has not passed yet,
// otherwise rolled forward one cycle.
func CalculateNextRun(schedule *models.BackupSchedule, now time.Time) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), schedule.Hour, 0, 0, 0, now.Location())

	switch schedule.Type {
	case models.ScheduleWeekly:
		day := 0
		if schedule.DayOfWeek != nil {
			day = *schedule.DayOfWeek
		}
		offset := (day - int(now.Weekday()) + 7) % 7
		target = target.AddDate(0, 0, offset)
		if !target.After(now) {
			target = target.AddDate(0, 0, 7)
		}
	case models.ScheduleMonthly:
		day := 1
		if schedule.DayOfMonth != nil {
			day = *schedule.DayOfMonth
		}
		target = time.Date(now.Year(), now.Month(), day, schedule.Hour, 0, 0, 0, now.Location())
		if !target.After(now) {
			target = time.Date(now.Year(), now.Month()+1, day, schedule.Hour, 0, 0, 0, now.Location())
		}
	default: // daily
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}
	}
	return target
}
