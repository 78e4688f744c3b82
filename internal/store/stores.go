package store

import "database/sql"

// Stores bundles every table-level store over one database handle.
type Stores struct {
	Users     *UserStore
	Servers   *ServerStore
	Scans     *ScanStore
	Backups   *BackupStore
	Restores  *RestoreStore
	Schedules *ScheduleStore
}

func New(db *sql.DB) *Stores {
	return &Stores{
		Users:     NewUserStore(db),
		Servers:   NewServerStore(db),
		Scans:     NewScanStore(db),
		Backups:   NewBackupStore(db),
		Restores:  NewRestoreStore(db),
		Schedules: NewScheduleStore(db),
	}
}
