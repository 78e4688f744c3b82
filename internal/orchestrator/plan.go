package orchestrator

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/backstead/backstead/internal/models"
)

// Shutdown-order priorities. Databases stop last and start first; the
// things that depend on them are gone before the database goes down.
const (
	shutdownPriorityDatabase  = 100
	shutdownPriorityWebServer = 50
	shutdownPriorityDefault   = 10
)

// ServiceBackupConfig is the per-service plan built for one orchestration
// run from the latest completed scan. It is never persisted.
type ServiceBackupConfig struct {
	ServiceID        string
	Name             string
	Type             models.ServiceType
	Profile          models.ServiceProfile
	Method           string // "hot" or "cold"
	RequiresShutdown bool
	ShutdownPriority int
	ArtifactName     string
	BackupCommand    string
	RestoreCommand   string
	HealthCheck      string
	StopCommand      string
	StartCommand     string
	DataPaths        []string
}

// BuildPlan derives a backup plan from detected services. Databases get a
// hot dump with a health check; everything else gets a cold archive of its
// data paths.
func BuildPlan(services []models.DetectedService, stagingDir string) []ServiceBackupConfig {
	plan := make([]ServiceBackupConfig, 0, len(services))
	for _, svc := range services {
		cfg := ServiceBackupConfig{
			ServiceID: svc.ID,
			Name:      svc.Name,
			Type:      svc.Type,
			Profile:   svc.Profile,
			DataPaths: svc.DataPaths,
		}

		switch svc.Profile.Kind {
		case models.KindDatabase:
			cfg.Method = "hot"
			cfg.RequiresShutdown = false
			cfg.ShutdownPriority = shutdownPriorityDatabase
			cfg.ArtifactName = dumpArtifactName(svc.Name, svc.Profile.Engine)
			cfg.BackupCommand = dumpCommand(svc.Profile.Engine, path.Join(stagingDir, cfg.ArtifactName))
			cfg.RestoreCommand = restoreDumpCommand(svc.Profile.Engine, path.Join(stagingDir, cfg.ArtifactName))
			cfg.HealthCheck = databaseHealthCheck(svc.Profile.Engine)
		case models.KindWebServer:
			cfg.Method = "cold"
			cfg.RequiresShutdown = true
			cfg.ShutdownPriority = shutdownPriorityWebServer
			cfg.ArtifactName = svc.Name + ".tar.gz"
			cfg.BackupCommand = archiveCommand(path.Join(stagingDir, cfg.ArtifactName), svc.DataPaths)
			cfg.RestoreCommand = extractCommand(path.Join(stagingDir, cfg.ArtifactName))
		default:
			cfg.Method = "cold"
			cfg.RequiresShutdown = true
			cfg.ShutdownPriority = shutdownPriorityDefault
			cfg.ArtifactName = svc.Name + ".tar.gz"
			cfg.BackupCommand = archiveCommand(path.Join(stagingDir, cfg.ArtifactName), svc.DataPaths)
			cfg.RestoreCommand = extractCommand(path.Join(stagingDir, cfg.ArtifactName))
		}

		cfg.StopCommand, cfg.StartCommand = lifecycleCommands(svc)
		if cfg.HealthCheck == "" {
			cfg.HealthCheck = genericHealthCheck(svc)
		}

		plan = append(plan, cfg)
	}
	return plan
}

// StopOrder returns the plan's shutdown-requiring services in ascending
// shutdown priority: least critical stops first, databases stop last.
func StopOrder(plan []ServiceBackupConfig) []ServiceBackupConfig {
	stops := make([]ServiceBackupConfig, 0, len(plan))
	for _, cfg := range plan {
		if cfg.RequiresShutdown {
			stops = append(stops, cfg)
		}
	}
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].ShutdownPriority < stops[j].ShutdownPriority
	})
	return stops
}

// Reverse returns a reversed copy. Restart order is the exact reverse of
// the realized stop order.
func Reverse(configs []ServiceBackupConfig) []ServiceBackupConfig {
	out := make([]ServiceBackupConfig, len(configs))
	for i, cfg := range configs {
		out[len(configs)-1-i] = cfg
	}
	return out
}

func dumpArtifactName(name string, engine models.Engine) string {
	switch engine {
	case models.EngineMongoDB:
		return name + ".archive"
	case models.EngineRedis:
		return name + ".rdb"
	default:
		return name + ".sql"
	}
}

func dumpCommand(engine models.Engine, artifact string) string {
	switch engine {
	case models.EngineMySQL, models.EngineMariaDB:
		return "mysqldump --all-databases --single-transaction --result-file=" + artifact
	case models.EnginePostgres:
		return "sudo -u postgres pg_dumpall -f " + artifact
	case models.EngineMongoDB:
		return "mongodump --archive=" + artifact
	case models.EngineRedis:
		return "redis-cli --rdb " + artifact
	}
	return ""
}

func restoreDumpCommand(engine models.Engine, artifact string) string {
	switch engine {
	case models.EngineMySQL, models.EngineMariaDB:
		return fmt.Sprintf("mysql -e \"source %s\"", artifact)
	case models.EnginePostgres:
		return "sudo -u postgres psql -f " + artifact
	case models.EngineMongoDB:
		return "mongorestore --drop --archive=" + artifact
	case models.EngineRedis:
		return "cp " + artifact + " /var/lib/redis/dump.rdb"
	}
	return ""
}

func databaseHealthCheck(engine models.Engine) string {
	switch engine {
	case models.EngineMySQL, models.EngineMariaDB:
		return "mysqladmin ping"
	case models.EnginePostgres:
		return "pg_isready"
	case models.EngineRedis:
		return "redis-cli ping"
	}
	// No safe universal probe for the rest.
	return ""
}

func archiveCommand(artifact string, paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return "tar -czf " + artifact + " " + strings.Join(paths, " ")
}

func extractCommand(artifact string) string {
	return "tar -xzf " + artifact + " -C /"
}

func lifecycleCommands(svc models.DetectedService) (stop, start string) {
	switch svc.Type {
	case models.ServiceDocker:
		return "docker stop " + svc.Name, "docker start " + svc.Name
	default:
		return "systemctl stop " + svc.Name, "systemctl start " + svc.Name
	}
}

func genericHealthCheck(svc models.DetectedService) string {
	switch svc.Type {
	case models.ServiceDocker:
		return `docker inspect --format {{.State.Running}} ` + svc.Name
	case models.ServiceSystemd:
		return "systemctl is-active " + svc.Name
	}
	return ""
}
