package scanner

import (
	"strings"

	"github.com/backstead/backstead/internal/models"
)

// Scan-time priorities by profile kind. Databases outrank web servers
// outrank everything else; recommendation rules key off these values.
const (
	priorityDatabase  = 9
	priorityWebServer = 6
	priorityGeneric   = 3

	priorityDataMount   = 7
	prioritySystemMount = 2
	priorityOtherMount  = 4
)

// applyProfileDefaults fills priority, strategy and conventional paths from
// the resolved profile.
func applyProfileDefaults(svc *models.DetectedService) {
	switch svc.Profile.Kind {
	case models.KindDatabase:
		svc.Priority = priorityDatabase
		svc.Strategy = "hot"
		svc.DataPaths = databaseDataPaths(svc.Profile.Engine)
		svc.ConfigPaths = databaseConfigPaths(svc.Profile.Engine)
		svc.LogPaths = []string{"/var/log/" + string(svc.Profile.Engine)}
	case models.KindWebServer:
		svc.Priority = priorityWebServer
		svc.Strategy = "cold"
		svc.ConfigPaths = []string{"/etc/" + svc.Name}
		svc.DataPaths = []string{"/var/www"}
		svc.LogPaths = []string{"/var/log/" + svc.Name}
	default:
		svc.Priority = priorityGeneric
		svc.Strategy = "cold"
		svc.ConfigPaths = []string{"/etc/" + svc.Name}
		svc.DataPaths = []string{"/var/lib/" + svc.Name}
		svc.LogPaths = []string{"/var/log/" + svc.Name}
	}
}

func databaseDataPaths(engine models.Engine) []string {
	switch engine {
	case models.EngineMySQL, models.EngineMariaDB:
		return []string{"/var/lib/mysql"}
	case models.EnginePostgres:
		return []string{"/var/lib/postgresql"}
	case models.EngineMongoDB:
		return []string{"/var/lib/mongodb"}
	case models.EngineRedis:
		return []string{"/var/lib/redis"}
	}
	return nil
}

func databaseConfigPaths(engine models.Engine) []string {
	switch engine {
	case models.EngineMySQL, models.EngineMariaDB:
		return []string{"/etc/mysql"}
	case models.EnginePostgres:
		return []string{"/etc/postgresql"}
	case models.EngineMongoDB:
		return []string{"/etc/mongod.conf"}
	case models.EngineRedis:
		return []string{"/etc/redis"}
	}
	return nil
}

var systemMountPrefixes = []string{"/boot", "/usr", "/etc", "/run", "/snap"}

var dataMountPrefixes = []string{"/var/lib", "/srv", "/data", "/home", "/opt", "/mnt/data"}

// ClassifyFilesystem fills the convention-derived flags on a parsed mount.
func ClassifyFilesystem(fs *models.DetectedFilesystem) {
	fs.IsSystem = fs.MountPoint == "/" || hasAnyPrefix(fs.MountPoint, systemMountPrefixes)
	fs.ContainsData = hasAnyPrefix(fs.MountPoint, dataMountPrefixes)
	fs.BackupRecommended = fs.ContainsData

	switch {
	case fs.ContainsData:
		fs.Priority = priorityDataMount
	case fs.IsSystem:
		fs.Priority = prioritySystemMount
	default:
		fs.Priority = priorityOtherMount
	}

	// Rough gzip estimate over the used portion.
	fs.EstimatedBytes = fs.UsedBytes / 2

	if fs.ContainsData {
		fs.ExcludePatterns = []string{"*.tmp", "lost+found"}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// DeriveRecommendations builds backup recommendations from scan output:
// one per critical service (priority >= 8), one per database (always), one
// per filesystem flagged backup-recommended with priority >= 7.
func DeriveRecommendations(services []models.DetectedService, filesystems []models.DetectedFilesystem) []models.BackupRecommendation {
	var recs []models.BackupRecommendation
	for _, svc := range services {
		if svc.Profile.IsDatabase() {
			recs = append(recs, models.BackupRecommendation{
				Type:         "database",
				Source:       svc.Name,
				Priority:     svc.Priority,
				IncludePaths: svc.DataPaths,
				Frequency:    "daily",
				Retention:    "30d",
				Method:       "dump",
			})
			continue
		}
		if svc.Priority >= 8 {
			recs = append(recs, models.BackupRecommendation{
				Type:         "service",
				Source:       svc.Name,
				Priority:     svc.Priority,
				IncludePaths: append(append([]string{}, svc.ConfigPaths...), svc.DataPaths...),
				Frequency:    "daily",
				Retention:    "14d",
				Method:       "archive",
			})
		}
	}

	for _, fs := range filesystems {
		if fs.BackupRecommended && fs.Priority >= 7 {
			recs = append(recs, models.BackupRecommendation{
				Type:           "filesystem",
				Source:         fs.MountPoint,
				Priority:       fs.Priority,
				IncludePaths:   []string{fs.MountPoint},
				ExcludePaths:   fs.ExcludePatterns,
				EstimatedBytes: fs.EstimatedBytes,
				Frequency:      "weekly",
				Retention:      "60d",
				Method:         "archive",
			})
		}
	}
	return recs
}
