// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/100-hours-a-week/7-team-kono-fe/internal/clientdata"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/database"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/events"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/observer"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and is the single source of truth for service instances.
type Container struct {
	// Databases
	ClientDataDB *database.DB // wallet snapshots and last known ticks

	// Repositories
	ClientDataRepo *clientdata.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Services
	Wallet observer.WalletProvider
	Engine *observer.Engine

	Scheduler *scheduler.Scheduler
}

// JobInstances holds references to all registered jobs for manual triggering via API
type JobInstances struct {
	HoldingsRefresh   scheduler.Job
	TickPersist       scheduler.Job // nil when tick persistence is disabled
	ClientDataCleanup scheduler.Job
	WALCheckpoint     scheduler.Job
	IntegrityCheck    scheduler.Job
}

// All returns every registered job
func (j *JobInstances) All() []scheduler.Job {
	var out []scheduler.Job
	for _, job := range []scheduler.Job{j.HoldingsRefresh, j.TickPersist, j.ClientDataCleanup, j.WALCheckpoint, j.IntegrityCheck} {
		if job != nil {
			out = append(out, job)
		}
	}
	return out
}

// Close releases subscriptions and closes databases
func (c *Container) Close() error {
	if c.Engine != nil {
		c.Engine.Close()
	}
	if c.ClientDataDB != nil {
		return c.ClientDataDB.Close()
	}
	return nil
}
