package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/database"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/store"
)

type stubQueue struct{}

func (stubQueue) Submit(string, map[string]any) (string, error) { return "job-1", nil }

type handlerFixture struct {
	stores *store.Stores
	server *models.Server
	router *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	router := gin.New()
	scans := NewScanHandler(stores.Servers, stores.Scans, stubQueue{})
	backups := NewBackupHandler(stores.Servers, stores.Scans, stores.Backups, stubQueue{})
	restores := NewRestoreHandler(stores.Backups, stores.Restores, stubQueue{})
	router.POST("/servers/:id/scans", scans.TriggerScan)
	router.POST("/servers/:id/backups", backups.TriggerBackup)
	router.POST("/backups/:backupId/restore", restores.TriggerRestore)

	return &handlerFixture{stores: stores, server: server, router: router}
}

func (f *handlerFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestTriggerScanRejectsMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.post("/servers/"+f.server.ID+"/scans", `{"type": `)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	// No scan row may exist after a rejected request.
	scans, _ := f.stores.Scans.ListByServer(f.server.ID)
	if len(scans) != 0 {
		t.Errorf("scans = %d, want 0", len(scans))
	}
}

func TestTriggerScanAcceptsEmptyBody(t *testing.T) {
	f := newHandlerFixture(t)

	// Empty body defaults to a full scan.
	w := f.post("/servers/"+f.server.ID+"/scans", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body = %s", w.Code, w.Body.String())
	}

	scans, _ := f.stores.Scans.ListByServer(f.server.ID)
	if len(scans) != 1 || scans[0].Type != models.ScanFull {
		t.Errorf("scans = %+v", scans)
	}
}

func TestTriggerBackupRejectsMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.post("/servers/"+f.server.ID+"/backups", `{"services": "not-a-list"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTriggerRestoreRejectsMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	backup := &models.Backup{ServerID: f.server.ID, Type: "manual", CreatedBy: f.server.OwnerID}
	if err := f.stores.Backups.Create(backup); err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}

	w := f.post("/backups/"+backup.ID+"/restore", `{"restore_type": 7`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	// No restore job may exist after a rejected request.
	restoreJobs, _ := f.stores.Restores.ListByServer(f.server.ID)
	if len(restoreJobs) != 0 {
		t.Errorf("restore jobs = %d, want 0", len(restoreJobs))
	}
}
