package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/notify"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/store"
)

// Scanner discovers services and filesystems on a remote server. One scan
// opens one session; all probes run sequentially over it under an overall
// deadline of three times the single-command timeout.
type Scanner struct {
	dialer     remote.Dialer
	scans      *store.ScanStore
	notifier   notify.Notifier
	cmdTimeout time.Duration
}

func New(dialer remote.Dialer, scans *store.ScanStore, notifier notify.Notifier, cmdTimeout time.Duration) *Scanner {
	if cmdTimeout == 0 {
		cmdTimeout = 60 * time.Second
	}
	return &Scanner{
		dialer:     dialer,
		scans:      scans,
		notifier:   notifier,
		cmdTimeout: cmdTimeout,
	}
}

// Result holds the output of one completed scan.
type Result struct {
	Scan            *models.Scan
	Services        []models.DetectedService
	Filesystems     []models.DetectedFilesystem
	Recommendations []models.BackupRecommendation
}

// Scan runs a discovery pass and persists it. The returned error is also
// recorded on the scan row; callers polling the row see the same outcome.
func (s *Scanner) Scan(ctx context.Context, server *models.Server, scanType models.ScanType) (*Result, error) {
	scan := &models.Scan{ServerID: server.ID, Type: scanType}
	if err := s.scans.Create(scan); err != nil {
		return nil, err
	}
	return s.Execute(ctx, server, scan)
}

// Execute runs a discovery pass against an already-created scan row. Async
// callers create the row first so its id can be handed back immediately.
func (s *Scanner) Execute(ctx context.Context, server *models.Server, scan *models.Scan) (*Result, error) {
	result, err := s.run(ctx, server, scan)
	if err != nil {
		if ferr := s.scans.Fail(scan.ID, err.Error()); ferr != nil {
			logging.L().Error("scan_fail_persist_error", "scan_id", scan.ID, "error", ferr)
		}
		s.notifier.Notify(notify.Event{
			Type:     notify.EventScanFailed,
			ServerID: server.ID,
			Subject:  scan.ID,
			Message:  err.Error(),
		})
		return nil, err
	}

	return result, nil
}

func (s *Scanner) run(ctx context.Context, server *models.Server, scan *models.Scan) (*Result, error) {
	if err := s.scans.SetStatus(scan.ID, models.ScanRunning); err != nil {
		return nil, err
	}

	session, err := s.dialer.Dial(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	type probeResult struct {
		result *Result
		err    error
	}

	// A hung probe must not wedge the scan forever.
	done := make(chan probeResult, 1)
	go func() {
		res, err := s.discover(session, scan)
		done <- probeResult{res, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if err := s.scans.Complete(scan, r.result.Services, r.result.Filesystems, r.result.Recommendations); err != nil {
			return nil, err
		}
		s.notifier.Notify(notify.Event{
			Type:     notify.EventScanCompleted,
			ServerID: server.ID,
			Subject:  scan.ID,
			Message:  scan.Summary,
		})
		return r.result, nil
	case <-time.After(3 * s.cmdTimeout):
		return nil, fmt.Errorf("scan timed out after %v", 3*s.cmdTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// discover runs every probe. Each probe is best effort; a failing probe
// contributes nothing but does not fail the scan.
func (s *Scanner) discover(session remote.Session, scan *models.Scan) (*Result, error) {
	var services []models.DetectedService

	if systemd, err := s.probeSystemd(session); err != nil {
		logging.L().Debug("scan_probe_failed", "probe", "systemd", "error", err)
	} else {
		services = append(services, systemd...)
	}

	if containers, err := s.probeDocker(session); err != nil {
		logging.L().Debug("scan_probe_failed", "probe", "docker", "error", err)
	} else {
		services = append(services, containers...)
	}

	if daemons, err := s.probeDatabasePackages(session, services); err != nil {
		logging.L().Debug("scan_probe_failed", "probe", "db_packages", "error", err)
	} else {
		services = append(services, daemons...)
	}

	var filesystems []models.DetectedFilesystem
	if fs, err := s.probeFilesystems(session); err != nil {
		logging.L().Debug("scan_probe_failed", "probe", "filesystems", "error", err)
	} else {
		filesystems = fs
	}

	recommendations := DeriveRecommendations(services, filesystems)

	scan.Summary = fmt.Sprintf("%d services, %d filesystems, %d recommendations",
		len(services), len(filesystems), len(recommendations))

	return &Result{
		Scan:            scan,
		Services:        services,
		Filesystems:     filesystems,
		Recommendations: recommendations,
	}, nil
}

// exec validates and runs one probe command.
func (s *Scanner) exec(session remote.Session, command string) (*remote.Result, error) {
	if err := remote.ValidateCommand(command); err != nil {
		return nil, err
	}
	return session.ExecWithTimeout(command, s.cmdTimeout)
}

func (s *Scanner) probeSystemd(session remote.Session) ([]models.DetectedService, error) {
	res, err := s.exec(session, "systemctl list-units --type=service --state=running --no-pager --no-legend --plain")
	if err != nil {
		return nil, err
	}

	var services []models.DetectedService
	for _, unit := range ParseSystemdUnits(res.Stdout) {
		svc := models.DetectedService{
			Name:    unit,
			Type:    models.ServiceSystemd,
			Status:  "running",
			Profile: models.ResolveProfile(unit),
		}
		applyProfileDefaults(&svc)
		s.probePID(session, &svc)
		services = append(services, svc)
	}
	return services, nil
}

func (s *Scanner) probePID(session remote.Session, svc *models.DetectedService) {
	res, err := s.exec(session, "systemctl show "+svc.Name+" --property=MainPID --value")
	if err != nil {
		return
	}
	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(res.Stdout), "%d", &pid); err == nil {
		svc.PID = pid
	}
}

func (s *Scanner) probeDocker(session remote.Session) ([]models.DetectedService, error) {
	res, err := s.exec(session, `docker ps --no-trunc --format "{{.Names}}\t{{.Image}}\t{{.Ports}}\t{{.Status}}"`)
	if err != nil {
		return nil, err
	}

	var services []models.DetectedService
	for _, c := range ParseDockerContainers(res.Stdout) {
		svc := models.DetectedService{
			Name:    c.Name,
			Type:    models.ServiceDocker,
			Status:  c.Status,
			Ports:   c.Ports,
			Details: map[string]string{"image": c.Image},
			Profile: models.ResolveProfile(c.Image),
		}
		applyProfileDefaults(&svc)
		services = append(services, svc)
	}
	return services, nil
}

// probeDatabasePackages finds database daemons installed as OS packages
// that no managed service entry accounted for.
func (s *Scanner) probeDatabasePackages(session remote.Session, known []models.DetectedService) ([]models.DetectedService, error) {
	binaries := []string{"mysqld", "postgres", "mongod", "redis-server"}

	detected := make(map[models.Engine]bool)
	for _, svc := range known {
		if svc.Profile.IsDatabase() {
			detected[svc.Profile.Engine] = true
		}
	}

	var services []models.DetectedService
	for _, binary := range binaries {
		res, err := s.exec(session, "which "+binary)
		if err != nil || strings.TrimSpace(res.Stdout) == "" {
			continue
		}

		profile := models.ResolveProfile(binary)
		if !profile.IsDatabase() || detected[profile.Engine] {
			continue
		}

		svc := models.DetectedService{
			Name:    binary,
			Type:    models.ServiceDatabase,
			Status:  "detected",
			Details: map[string]string{"binary": strings.TrimSpace(res.Stdout)},
			Profile: profile,
		}
		applyProfileDefaults(&svc)
		services = append(services, svc)
	}
	return services, nil
}

func (s *Scanner) probeFilesystems(session remote.Session) ([]models.DetectedFilesystem, error) {
	res, err := s.exec(session, "df -PB1")
	if err != nil {
		return nil, err
	}

	filesystems := ParseDiskUsage(res.Stdout)
	for i := range filesystems {
		ClassifyFilesystem(&filesystems[i])
	}
	return filesystems, nil
}
