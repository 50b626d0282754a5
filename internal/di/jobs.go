package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/clientdata"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/config"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/scheduler"
)

const (
	clientDataCleanupSchedule = "@every 1h"
	walCheckpointSchedule     = "@every 6h"
	integrityCheckSchedule    = "0 4 * * *"
)

// RegisterJobs creates the background jobs and registers them with the scheduler.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Engine == nil {
		return nil, fmt.Errorf("container with engine is required")
	}

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}

	instances.HoldingsRefresh = scheduler.Exclusive(container.Engine.RefreshJob())
	if err := container.Scheduler.AddJob(cfg.Portfolio.HoldingsRefresh, instances.HoldingsRefresh); err != nil {
		return nil, fmt.Errorf("failed to register holdings refresh job: %w", err)
	}

	if cfg.Feed.TickPersistInterval > 0 {
		instances.TickPersist = scheduler.Exclusive(container.Engine.PersistJob())
		schedule := "@every " + cfg.Feed.TickPersistInterval.String()
		if err := container.Scheduler.AddJob(schedule, instances.TickPersist); err != nil {
			return nil, fmt.Errorf("failed to register tick persist job: %w", err)
		}
	}

	instances.ClientDataCleanup = scheduler.Exclusive(clientdata.NewCleanupJob(container.ClientDataRepo, log))
	if err := container.Scheduler.AddJob(clientDataCleanupSchedule, instances.ClientDataCleanup); err != nil {
		return nil, fmt.Errorf("failed to register client data cleanup job: %w", err)
	}

	instances.WALCheckpoint = scheduler.Exclusive(scheduler.NewCheckWALCheckpointsJob(log, container.ClientDataDB))
	if err := container.Scheduler.AddJob(walCheckpointSchedule, instances.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}

	instances.IntegrityCheck = scheduler.Exclusive(scheduler.NewCheckDatabasesJob(log, container.ClientDataDB))
	if err := container.Scheduler.AddJob(integrityCheckSchedule, instances.IntegrityCheck); err != nil {
		return nil, fmt.Errorf("failed to register integrity check job: %w", err)
	}

	return instances, nil
}
