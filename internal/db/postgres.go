package db

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/metricsd/internal/config"
	"github.com/yungbote/metricsd/internal/logger"
	"github.com/yungbote/metricsd/internal/types"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewPostgresService opens a connection pool sized for the worker model: one
// record is handled in one transaction, so a worker never needs more than one
// connection at a time.
func NewPostgresService(cfg config.PostgreSQL, workers int, log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	serviceLog.Info("Connecting to Postgres", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(workers)
	sqlDB.SetMaxIdleConns(workers)

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

// NewServiceFromDB wraps an already opened gorm handle; tests use it to run
// the pipeline against sqlite.
func NewServiceFromDB(gdb *gorm.DB, log *logger.Logger) *PostgresService {
	return &PostgresService{db: gdb, log: log.With("service", "PostgresService")}
}

// Ping probes the database; called once per worker at startup so connection
// problems surface as a clean exit instead of a stream of handler failures.
func (s *PostgresService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrateAll creates or updates every table of the pipeline.
func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables")
	return AutoMigrate(s.db)
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// AutoMigrate is shared with the sqlite-backed tests.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.MetricsRequest{},
		&types.Machine{},
		&types.Uptime{},
		&types.ImageVersion{},
		&types.DualBootBooted{},
		&types.LiveUsbBooted{},
		&types.EnteredDemoMode{},
		&types.LocationLabel{},
		&types.OSVersion{},
		&types.MonitorConnected{},
		&types.MonitorDisconnected{},
		&types.RAMSize{},
		&types.DiskSpaceTotal{},
		&types.DiskSpaceExtra{},
		&types.CPUInfo{},
		&types.NetworkID{},
		&types.ProgramDumpedCore{},
		&types.StartupFinished{},
		&types.UpdaterBranchSelected{},
		&types.LaunchedEquivalentExistingFlatpak{},
		&types.LaunchedEquivalentInstallerForFlatpak{},
		&types.LaunchedExistingFlatpak{},
		&types.LaunchedInstallerForFlatpak{},
		&types.LinuxPackageOpened{},
		&types.WindowsAppOpened{},
		&types.ShellAppAddedToDesktop{},
		&types.ShellAppRemovedFromDesktop{},
		&types.ParentalControlsBlockedFlatpakInstall{},
		&types.ParentalControlsBlockedFlatpakRun{},
		&types.ParentalControlsChanged{},
		&types.HackClubhouseProgress{},
		&types.HackClubhouseMode{},
		&types.HackClubhouseNewsQuestLink{},
		&types.HackClubhouseChangePage{},
		&types.HackClubhouseAchievement{},
		&types.HackClubhouseAchievementPoints{},
		&types.ShellAppIsOpen{},
		&types.UserIsLoggedIn{},
		&types.UnknownSingularEvent{},
		&types.InvalidSingularEvent{},
		&types.UnknownAggregateEvent{},
		&types.InvalidAggregateEvent{},
		&types.UnknownSequence{},
		&types.InvalidSequence{},
	)
}
