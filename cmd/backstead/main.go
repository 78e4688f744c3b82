package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/backstead/backstead/internal/api"
	"github.com/backstead/backstead/internal/archive"
	"github.com/backstead/backstead/internal/auth"
	"github.com/backstead/backstead/internal/config"
	"github.com/backstead/backstead/internal/crypto"
	"github.com/backstead/backstead/internal/database"
	"github.com/backstead/backstead/internal/healthcheck"
	"github.com/backstead/backstead/internal/jobs"
	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/orchestrator"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/scanner"
	"github.com/backstead/backstead/internal/scheduler"
	"github.com/backstead/backstead/internal/ssh"
	"github.com/backstead/backstead/internal/store"
	"github.com/backstead/backstead/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	creds, err := crypto.NewManager(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential encryption: %v", err)
	}

	stores := store.New(db.DB)

	dialer := ssh.NewDialer(ssh.Config{
		ConnectTimeout:  cfg.Security.SSH.ConnectTimeout,
		CommandTimeout:  cfg.Security.SSH.CommandTimeout,
		KnownHostsPath:  cfg.Security.SSH.KnownHostsPath,
		TrustOnFirstUse: cfg.Security.SSH.TrustOnFirstUse,
	}, creds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	notifier := notify.NewFanout(notify.LogNotifier{}, &notify.HubNotifier{Hub: hub})

	scan := scanner.New(dialer, stores.Scans, notifier, cfg.Security.SSH.CommandTimeout)
	backupOrch := orchestrator.NewBackupOrchestrator(dialer, stores.Servers, stores.Scans, stores.Backups, notifier, cfg.Storage.BackupDir)
	restoreOrch := orchestrator.NewRestoreOrchestrator(dialer, stores.Servers, stores.Scans, stores.Backups, stores.Restores, notifier)

	if dest, err := archive.New(cfg.Archive); err != nil {
		log.Fatalf("Failed to initialize archive destination: %v", err)
	} else if dest != nil {
		backupOrch.SetDestination(dest)
		logging.L().Info("archive_destination_configured", "type", dest.Type())
	}

	q := queue.NewMemory(4, 64)
	jobs.Register(q, scan, backupOrch, restoreOrch, stores.Servers, stores.Scans, stores.Restores)
	q.Start(ctx)

	sched := scheduler.New(stores.Schedules, stores.Backups, q)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	checker := healthcheck.New(dialer, stores.Servers, stores.Scans, stores.Backups, notifier, cfg.Healthcheck.Interval)
	if cfg.Healthcheck.Enabled {
		go checker.Run(ctx)
	}

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, parseDuration(cfg.Auth.AccessTokenDuration))

	router := api.SetupRouter(api.Deps{
		Config:    cfg,
		Stores:    stores,
		Creds:     creds,
		Dialer:    dialer,
		Queue:     q,
		Scheduler: sched,
		Checker:   checker,
		Hub:       hub,
		JWT:       jwtManager,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", server.Addr)

		if cfg.Server.TLS.Enabled {
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTPS server: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	// Stop the trigger loop first so no new work arrives, then drain the
	// worker pool.
	sched.Stop()
	cancel()
	q.Wait()

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "backstead.log")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
		return err
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func runMigrations(cfg *config.Config) {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}
