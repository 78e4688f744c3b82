package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/backstead/backstead/internal/database"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/store"
)

func intPtr(v int) *int { return &v }

func TestBuildCronExpr(t *testing.T) {
	cases := []struct {
		name     string
		schedule models.BackupSchedule
		want     string
		wantErr  bool
	}{
		{
			name:     "daily",
			schedule: models.BackupSchedule{Type: models.ScheduleDaily, Hour: 2},
			want:     "0 2 * * *",
		},
		{
			name:     "weekly sunday",
			schedule: models.BackupSchedule{Type: models.ScheduleWeekly, Hour: 3, DayOfWeek: intPtr(0)},
			want:     "0 3 * * 0",
		},
		{
			name:     "weekly saturday",
			schedule: models.BackupSchedule{Type: models.ScheduleWeekly, Hour: 23, DayOfWeek: intPtr(6)},
			want:     "0 23 * * 6",
		},
		{
			name:     "monthly",
			schedule: models.BackupSchedule{Type: models.ScheduleMonthly, Hour: 4, DayOfMonth: intPtr(15)},
			want:     "0 4 15 * *",
		},
		{
			name:     "hour too large",
			schedule: models.BackupSchedule{Type: models.ScheduleDaily, Hour: 24},
			wantErr:  true,
		},
		{
			name:     "negative hour",
			schedule: models.BackupSchedule{Type: models.ScheduleDaily, Hour: -1},
			wantErr:  true,
		},
		{
			name:     "weekly without day",
			schedule: models.BackupSchedule{Type: models.ScheduleWeekly, Hour: 2},
			wantErr:  true,
		},
		{
			name:     "weekly day out of range",
			schedule: models.BackupSchedule{Type: models.ScheduleWeekly, Hour: 2, DayOfWeek: intPtr(7)},
			wantErr:  true,
		},
		{
			name:     "monthly without day",
			schedule: models.BackupSchedule{Type: models.ScheduleMonthly, Hour: 2},
			wantErr:  true,
		},
		{
			name:     "monthly day 29 rejected",
			schedule: models.BackupSchedule{Type: models.ScheduleMonthly, Hour: 2, DayOfMonth: intPtr(29)},
			wantErr:  true,
		},
		{
			name:     "unknown type",
			schedule: models.BackupSchedule{Type: "hourly", Hour: 2},
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildCronExpr(&tc.schedule)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("BuildCronExpr = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCronExpr failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("BuildCronExpr = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCalculateNextRunDaily(t *testing.T) {
	schedule := &models.BackupSchedule{Type: models.ScheduleDaily, Hour: 2}

	// Before today's occurrence: fires today.
	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	next := CalculateNextRun(schedule, now)
	want := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// After today's occurrence: rolls to tomorrow.
	now = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	next = CalculateNextRun(schedule, now)
	want = time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Exactly at the occurrence: strictly after, so tomorrow.
	now = time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	next = CalculateNextRun(schedule, now)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextRunWeekly(t *testing.T) {
	// 2026-03-10 is a Tuesday.
	schedule := &models.BackupSchedule{Type: models.ScheduleWeekly, Hour: 5, DayOfWeek: intPtr(2)}

	// Same weekday, before the hour: fires today.
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	next := CalculateNextRun(schedule, now)
	want := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Same weekday, after the hour: rolls a full week.
	now = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	next = CalculateNextRun(schedule, now)
	want = time.Date(2026, 3, 17, 5, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Different weekday: next occurrence within the week.
	schedule.DayOfWeek = intPtr(5) // Friday
	now = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	next = CalculateNextRun(schedule, now)
	want = time.Date(2026, 3, 13, 5, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextRunMonthly(t *testing.T) {
	schedule := &models.BackupSchedule{Type: models.ScheduleMonthly, Hour: 1, DayOfMonth: intPtr(5)}

	// Before this month's occurrence.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	next := CalculateNextRun(schedule, now)
	want := time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// After this month's occurrence: rolls to next month.
	now = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	next = CalculateNextRun(schedule, now)
	want = time.Date(2026, 4, 5, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// December rolls into January of the next year.
	now = time.Date(2026, 12, 20, 12, 0, 0, 0, time.UTC)
	next = CalculateNextRun(schedule, now)
	want = time.Date(2027, 1, 5, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

// captureQueue records the last submitted job.
type captureQueue struct {
	jobType string
	payload map[string]any
	err     error
}

func (q *captureQueue) Submit(jobType string, payload map[string]any) (string, error) {
	q.jobType = jobType
	q.payload = payload
	if q.err != nil {
		return "", q.err
	}
	return "job-1", nil
}

func newSchedFixture(t *testing.T) (*store.Stores, *models.BackupSchedule) {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	stores := store.New(db.DB)

	owner := &models.User{Username: "admin", Email: "admin@example.com", PasswordHash: "hash", Active: true}
	if err := stores.Users.Create(owner); err != nil {
		t.Fatalf("failed to create owner: %v", err)
	}
	server := &models.Server{
		Name:                "db-01",
		Host:                "10.0.0.7",
		Username:            "deploy",
		AuthMethod:          models.AuthKey,
		EncryptedCredential: []byte("opaque"),
		OwnerID:             owner.ID,
	}
	if err := stores.Servers.Create(server); err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	schedule := &models.BackupSchedule{
		ServerID: server.ID,
		Type:     models.ScheduleDaily,
		Hour:     2,
		Enabled:  true,
	}
	if err := stores.Schedules.Create(schedule); err != nil {
		t.Fatalf("failed to create schedule: %v", err)
	}
	return stores, schedule
}

func TestScheduleBackupPersistsNextRun(t *testing.T) {
	stores, schedule := newSchedFixture(t)

	sched := New(stores.Schedules, stores.Backups, &captureQueue{})
	if err := sched.ScheduleBackup(schedule); err != nil {
		t.Fatalf("ScheduleBackup failed: %v", err)
	}

	stored, err := stores.Schedules.Get(schedule.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.NextRun == nil {
		t.Fatal("NextRun not persisted on arming")
	}
	if !stored.NextRun.After(time.Now().Add(-time.Minute)) {
		t.Errorf("NextRun = %v, not in the future", stored.NextRun)
	}

	sched.UnscheduleBackup(schedule.ID)
	stored, err = stores.Schedules.Get(schedule.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.NextRun != nil {
		t.Errorf("NextRun = %v after disarming, want cleared", stored.NextRun)
	}
}

func TestTriggerSubmitsJobWithIdentity(t *testing.T) {
	stores, schedule := newSchedFixture(t)

	q := &captureQueue{}
	sched := New(stores.Schedules, stores.Backups, q)
	sched.trigger(schedule.ID)

	if q.jobType != JobTypeBackup {
		t.Errorf("jobType = %q", q.jobType)
	}
	for _, key := range []string{"backup_id", "server_id", "schedule_id", "created_by"} {
		if q.payload[key] == nil || q.payload[key] == "" {
			t.Errorf("payload missing %s: %v", key, q.payload)
		}
	}
	if q.payload["created_by"] != "scheduler" {
		t.Errorf("created_by = %v", q.payload["created_by"])
	}
	if q.payload["server_id"] != schedule.ServerID {
		t.Errorf("server_id = %v", q.payload["server_id"])
	}

	// The pending row exists and the run is stamped successful.
	backups, err := stores.Backups.ListByServer(schedule.ServerID)
	if err != nil || len(backups) != 1 {
		t.Fatalf("backups = %v, err = %v", backups, err)
	}
	if backups[0].Type != "scheduled" || backups[0].Status != models.BackupPending {
		t.Errorf("backup = %+v", backups[0])
	}

	stored, _ := stores.Schedules.Get(schedule.ID)
	if stored.LastStatus != "success" || stored.LastRun == nil {
		t.Errorf("schedule = %+v", stored)
	}
}

func TestTriggerEnqueueFailureRecordsFailure(t *testing.T) {
	stores, schedule := newSchedFixture(t)

	q := &captureQueue{err: errors.New("queue full")}
	sched := New(stores.Schedules, stores.Backups, q)
	sched.trigger(schedule.ID)

	stored, _ := stores.Schedules.Get(schedule.ID)
	if stored.LastStatus != "failure" {
		t.Errorf("LastStatus = %q, want failure", stored.LastStatus)
	}

	// The pending backup row stays behind for inspection.
	backups, _ := stores.Backups.ListByServer(schedule.ServerID)
	if len(backups) != 1 {
		t.Errorf("backups = %d, want 1", len(backups))
	}
}

func TestCalculateNextRunIsStrictlyFuture(t *testing.T) {
	schedules := []*models.BackupSchedule{
		{Type: models.ScheduleDaily, Hour: 0},
		{Type: models.ScheduleWeekly, Hour: 0, DayOfWeek: intPtr(1)},
		{Type: models.ScheduleMonthly, Hour: 0, DayOfMonth: intPtr(1)},
	}
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) // Monday the 1st, midnight

	for _, schedule := range schedules {
		next := CalculateNextRun(schedule, now)
		if !next.After(now) {
			t.Errorf("%s: next = %v, not after %v", schedule.Type, next, now)
		}
	}
}
