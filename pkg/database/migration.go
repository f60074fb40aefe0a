package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// MigrationConfig controls schema migration behavior at boot.
type MigrationConfig struct {
	// MigrationFolderPath holds the versioned .up.sql/.down.sql pairs,
	// relative paths resolve against the working directory.
	MigrationFolderPath string
	// Version pins the target schema version; 0 migrates to latest.
	Version uint
	// Force stamps the schema version without running migrations. Used to
	// recover a dirty database by hand.
	Force int
	// AutoRollback re-stamps a dirty database back to the version it held
	// before the failed run. The boot still fails so the bad migration gets
	// fixed instead of masked.
	AutoRollback bool
}

// MigrationService applies golang-migrate migrations before the service
// accepts traffic.
type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{config: config, logger: logger}
}

// migrationLogger adapts ectologger to the migrate.Logger interface.
type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// Migrate runs all pending migrations against the given driver.
func (ms *MigrationService) Migrate(databaseName string, driver database.Driver) error {
	folder, err := ms.resolveFolder()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force schema version %d", ms.config.Force)
			return err
		}
	}

	before, _, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Warn("Could not read current schema version")
	}

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	switch {
	case err == nil:
		ms.logger.Infof("Schema migrations applied in %v", time.Since(start))
		return nil
	case err == migrate.ErrNoChange:
		ms.logger.Info("Schema already up to date")
		return nil
	}

	return ms.recover(m, err, before)
}

// recover handles a failed migration run. With AutoRollback, a dirty
// database is stamped back to the pre-run version; the error is returned
// either way so startup aborts.
func (ms *MigrationService) recover(m *migrate.Migrate, migrationErr error, before uint) error {
	ms.logger.WithError(migrationErr).Error("Schema migration failed")

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Could not read schema version after failure")
		return migrationErr
	}

	if dirty && ms.config.AutoRollback {
		if before == 0 && version > 0 {
			before = version - 1
		}
		ms.logger.Warnf("Schema dirty at version %d, stamping back to %d", version, before)
		if err := m.Force(int(before)); err != nil {
			ms.logger.WithError(err).Errorf("Failed to stamp schema version %d", before)
			return err
		}
	}

	return migrationErr
}

func (ms *MigrationService) resolveFolder() (string, error) {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "resolving migration folder")
	}
	folder = filepath.Join(wd, folder)
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", folder))
	}
	return folder, nil
}

var migrationFileRe = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// LatestVersion returns the highest migration version present in the
// folder. Used by operational tooling to sanity check a Force target.
func (ms *MigrationService) LatestVersion() (int, error) {
	folder, err := ms.resolveFolder()
	if err != nil {
		return 0, err
	}
	files, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	latest := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := migrationFileRe.FindStringSubmatch(file.Name())
		if len(matches) < 2 {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if version > latest {
			latest = version
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no migration files in %s", folder)
	}
	return latest, nil
}
