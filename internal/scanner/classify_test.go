package scanner

import (
	"testing"

	"github.com/backstead/backstead/internal/models"
)

func TestApplyProfileDefaultsDatabase(t *testing.T) {
	svc := models.DetectedService{
		Name:    "mysql",
		Profile: models.ResolveProfile("mysql"),
	}
	applyProfileDefaults(&svc)

	if svc.Priority != 9 {
		t.Errorf("Priority = %d, want 9", svc.Priority)
	}
	if svc.Strategy != "hot" {
		t.Errorf("Strategy = %q, want hot", svc.Strategy)
	}
	if len(svc.DataPaths) == 0 || svc.DataPaths[0] != "/var/lib/mysql" {
		t.Errorf("DataPaths = %v", svc.DataPaths)
	}
}

func TestApplyProfileDefaultsWebServer(t *testing.T) {
	svc := models.DetectedService{
		Name:    "nginx",
		Profile: models.ResolveProfile("nginx"),
	}
	applyProfileDefaults(&svc)

	if svc.Priority != 6 {
		t.Errorf("Priority = %d, want 6", svc.Priority)
	}
	if svc.Strategy != "cold" {
		t.Errorf("Strategy = %q, want cold", svc.Strategy)
	}
}

func TestApplyProfileDefaultsGeneric(t *testing.T) {
	svc := models.DetectedService{
		Name:    "cron",
		Profile: models.ResolveProfile("cron"),
	}
	applyProfileDefaults(&svc)

	if svc.Priority != 3 {
		t.Errorf("Priority = %d, want 3", svc.Priority)
	}
}

func TestClassifyFilesystem(t *testing.T) {
	cases := []struct {
		mount       string
		isSystem    bool
		hasData     bool
		priority    int
	}{
		{"/", true, false, 2},
		{"/boot", true, false, 2},
		{"/var/lib/mysql", false, true, 7},
		{"/srv/app", false, true, 7},
		{"/home", false, true, 7},
		{"/media/usb", false, false, 4},
	}

	for _, tc := range cases {
		fs := models.DetectedFilesystem{MountPoint: tc.mount, UsedBytes: 1000}
		ClassifyFilesystem(&fs)

		if fs.IsSystem != tc.isSystem {
			t.Errorf("%s: IsSystem = %v, want %v", tc.mount, fs.IsSystem, tc.isSystem)
		}
		if fs.ContainsData != tc.hasData {
			t.Errorf("%s: ContainsData = %v, want %v", tc.mount, fs.ContainsData, tc.hasData)
		}
		if fs.BackupRecommended != tc.hasData {
			t.Errorf("%s: BackupRecommended = %v, want %v", tc.mount, fs.BackupRecommended, tc.hasData)
		}
		if fs.Priority != tc.priority {
			t.Errorf("%s: Priority = %d, want %d", tc.mount, fs.Priority, tc.priority)
		}
		if fs.EstimatedBytes != 500 {
			t.Errorf("%s: EstimatedBytes = %d, want 500", tc.mount, fs.EstimatedBytes)
		}
	}
}

func TestDeriveRecommendations(t *testing.T) {
	mysql := models.DetectedService{Name: "mysql", Profile: models.ResolveProfile("mysql")}
	applyProfileDefaults(&mysql)
	nginx := models.DetectedService{Name: "nginx", Profile: models.ResolveProfile("nginx")}
	applyProfileDefaults(&nginx)
	cron := models.DetectedService{Name: "cron", Profile: models.ResolveProfile("cron")}
	applyProfileDefaults(&cron)

	dataMount := models.DetectedFilesystem{MountPoint: "/var/lib/mysql", UsedBytes: 2000}
	ClassifyFilesystem(&dataMount)
	rootMount := models.DetectedFilesystem{MountPoint: "/", UsedBytes: 4000}
	ClassifyFilesystem(&rootMount)

	recs := DeriveRecommendations(
		[]models.DetectedService{mysql, nginx, cron},
		[]models.DetectedFilesystem{dataMount, rootMount},
	)

	// Database always recommended; nginx and cron fall below the service
	// threshold; only the data mount clears the filesystem bar.
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations %v, want 2", len(recs), recs)
	}

	db := recs[0]
	if db.Type != "database" || db.Source != "mysql" {
		t.Errorf("recs[0] = %+v", db)
	}
	if db.Method != "dump" || db.Frequency != "daily" || db.Retention != "30d" {
		t.Errorf("database rec fields = %+v", db)
	}

	fs := recs[1]
	if fs.Type != "filesystem" || fs.Source != "/var/lib/mysql" {
		t.Errorf("recs[1] = %+v", fs)
	}
	if fs.Method != "archive" || fs.Frequency != "weekly" || fs.Retention != "60d" {
		t.Errorf("filesystem rec fields = %+v", fs)
	}
}
