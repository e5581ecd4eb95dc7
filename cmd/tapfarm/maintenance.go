package main

import (
	"fmt"
	"time"

	"jordanella.com/tapfarm/internal/database"
	"jordanella.com/tapfarm/internal/logging"
)

// maintain runs the startup housekeeping. A backup, when requested, is taken
// before anything is pruned; a zero cutoff keeps all history.
func maintain(db *database.DB, cutoff time.Time, backupPath string, logger *logging.Logger) error {
	if n, err := db.MarkInterruptedCycles(); err != nil {
		logger.Warnf("Could not mark interrupted cycles: %v", err)
	} else if n > 0 {
		logger.Warnf("Marked %d interrupted cycles as aborted", n)
	}

	if backupPath != "" {
		if err := db.Backup(backupPath); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		logger.Infof("Backed up database to %s", backupPath)
	}

	if cutoff.IsZero() {
		return nil
	}
	pruned, err := db.Prune(cutoff)
	if err != nil {
		logger.Warnf("Could not prune history: %v", err)
		return nil
	}
	if pruned.Cycles+pruned.Errors > 0 {
		logger.Infof("Pruned %d cycles and %d error entries finished before %s",
			pruned.Cycles, pruned.Errors, cutoff.Format(time.DateOnly))
	}
	return nil
}
