package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/backstead/backstead/internal/database"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/store"
)

const gb = 1024 * 1024 * 1024

func TestClassifyDisk(t *testing.T) {
	cases := []struct {
		usage int
		avail int64
		want  string
	}{
		{92, 50 * gb, DiskCritical},
		{70, 5 * gb, DiskCritical},
		{82, 100 * gb, DiskWarning},
		{50, 200 * gb, DiskOK},
		{90, 100 * gb, DiskCritical},
		{80, 100 * gb, DiskWarning},
		{79, 11 * gb, DiskOK},
	}

	for _, tc := range cases {
		if got := ClassifyDisk(tc.usage, tc.avail); got != tc.want {
			t.Errorf("ClassifyDisk(%d, %d) = %q, want %q", tc.usage, tc.avail, got, tc.want)
		}
	}
}

func newCheckFixture(t *testing.T) (*store.Stores, *models.Server, *notify.Recorder) {
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
		Name:                "web-01",
		Host:                "10.0.0.9",
		Username:            "deploy",
		AuthMethod:          models.AuthKey,
		EncryptedCredential: []byte("opaque"),
		OwnerID:             owner.ID,
	}
	if err := stores.Servers.Create(server); err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return stores, server, &notify.Recorder{}
}

func newChecker(stores *store.Stores, dialer remote.Dialer, recorder *notify.Recorder) *Checker {
	return New(dialer, stores.Servers, stores.Scans, stores.Backups, recorder, 0)
}

func dfOutput(usage int, availGB int64) string {
	total := int64(500) * gb
	avail := availGB * gb
	used := total - avail
	return fmt.Sprintf("Filesystem 1-blocks Used Available Capacity Mounted on\n"+
		"/dev/sda1 %d %d %d %d%% /\n", total, used, avail, usage)
}

func TestCheckServerHealthy(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	session := &remote.MockSession{Output: dfOutput(50, 200)}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	result := checker.CheckServer(context.Background(), server)
	if !result.Connected || !result.Healthy {
		t.Fatalf("result = %+v", result)
	}
	if len(result.DiskChecks) != 1 || result.DiskChecks[0].Status != DiskOK {
		t.Errorf("DiskChecks = %+v", result.DiskChecks)
	}
	if len(recorder.Events) != 0 {
		t.Errorf("events = %v", recorder.Types())
	}

	stored, _ := stores.Servers.Get(server.ID)
	if !stored.Online {
		t.Error("server not recorded online")
	}
}

func TestCheckServerCriticalDisk(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	session := &remote.MockSession{Output: dfOutput(95, 4)}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	result := checker.CheckServer(context.Background(), server)
	if !result.Connected {
		t.Fatal("expected connection to succeed")
	}
	if result.Healthy {
		t.Error("critical disk must flip the verdict")
	}
	if len(result.Alerts) != 1 {
		t.Errorf("Alerts = %v", result.Alerts)
	}

	types := recorder.Types()
	if len(types) != 1 || types[0] != notify.EventDiskCritical {
		t.Errorf("events = %v", types)
	}

	// Disk pressure is not connectivity loss; the server stays online.
	stored, _ := stores.Servers.Get(server.ID)
	if !stored.Online {
		t.Error("server must stay online despite disk pressure")
	}
}

func TestCheckServerWarningStaysHealthy(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	session := &remote.MockSession{Output: dfOutput(85, 60)}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	result := checker.CheckServer(context.Background(), server)
	if !result.Healthy {
		t.Error("warning must not flip the verdict")
	}
	if len(result.Alerts) != 1 {
		t.Errorf("Alerts = %v", result.Alerts)
	}

	types := recorder.Types()
	if len(types) != 1 || types[0] != notify.EventDiskWarning {
		t.Errorf("events = %v", types)
	}
}

func TestCheckServerUnreachable(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	checker := newChecker(stores, &remote.MockDialer{Err: errors.New("connection refused")}, recorder)

	result := checker.CheckServer(context.Background(), server)
	if result.Connected || result.Healthy {
		t.Fatalf("result = %+v", result)
	}
	if result.ConnectError == "" {
		t.Error("ConnectError not recorded")
	}

	types := recorder.Types()
	if len(types) != 1 || types[0] != notify.EventServerOffline {
		t.Errorf("events = %v", types)
	}

	stored, _ := stores.Servers.Get(server.ID)
	if stored.Online {
		t.Error("server must be recorded offline")
	}
}

func TestCheckServerDiskProbeFailure(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	session := &remote.MockSession{Err: errors.New("df: command failed")}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	// Reachable but no disk data: verdict rests on connectivity alone.
	result := checker.CheckServer(context.Background(), server)
	if !result.Connected || !result.Healthy {
		t.Fatalf("result = %+v", result)
	}
	if len(result.DiskChecks) != 0 {
		t.Errorf("DiskChecks = %+v", result.DiskChecks)
	}
	if len(recorder.Events) != 0 {
		t.Errorf("events = %v", recorder.Types())
	}
}

func TestCheckServerReportsAges(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	scan := &models.Scan{ServerID: server.ID, Type: models.ScanFull}
	if err := stores.Scans.Create(scan); err != nil {
		t.Fatalf("failed to create scan: %v", err)
	}
	if err := stores.Scans.Complete(scan, nil, nil, nil); err != nil {
		t.Fatalf("failed to complete scan: %v", err)
	}

	backup := &models.Backup{ServerID: server.ID, Type: "manual", CreatedBy: server.OwnerID}
	if err := stores.Backups.Create(backup); err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}
	if err := stores.Backups.MarkCompleted(backup.ID, "/tmp/b.tar.gz", 42, nil); err != nil {
		t.Fatalf("failed to complete backup: %v", err)
	}

	session := &remote.MockSession{Output: dfOutput(50, 200)}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	result := checker.CheckServer(context.Background(), server)
	if result.LastScanAgeSeconds == nil || *result.LastScanAgeSeconds < 0 {
		t.Errorf("LastScanAgeSeconds = %v", result.LastScanAgeSeconds)
	}
	if result.LastBackupAgeSeconds == nil || *result.LastBackupAgeSeconds < 0 {
		t.Errorf("LastBackupAgeSeconds = %v", result.LastBackupAgeSeconds)
	}
}

func TestCheckServerAgesUnsetWithoutHistory(t *testing.T) {
	stores, server, recorder := newCheckFixture(t)

	session := &remote.MockSession{Output: dfOutput(50, 200)}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	result := checker.CheckServer(context.Background(), server)
	if result.LastScanAgeSeconds != nil || result.LastBackupAgeSeconds != nil {
		t.Errorf("ages = %v %v, want unset", result.LastScanAgeSeconds, result.LastBackupAgeSeconds)
	}
}

func TestCheckAllSkipsOfflineServers(t *testing.T) {
	stores, online, recorder := newCheckFixture(t)

	if err := stores.Servers.SetHealth(online.ID, true, time.Now()); err != nil {
		t.Fatalf("failed to flag server online: %v", err)
	}

	// A second server that has never been reachable.
	offline := &models.Server{
		Name:                "db-02",
		Host:                "10.0.0.10",
		Username:            "deploy",
		AuthMethod:          models.AuthKey,
		EncryptedCredential: []byte("opaque"),
		OwnerID:             online.OwnerID,
	}
	if err := stores.Servers.Create(offline); err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	session := &remote.MockSession{Output: dfOutput(50, 200)}
	checker := newChecker(stores, &remote.MockDialer{Session: session}, recorder)

	results := checker.CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].ServerID != online.ID {
		t.Errorf("checked %s, want %s", results[0].ServerID, online.ID)
	}
}
