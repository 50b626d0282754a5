package clientdata

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// CleanupResult counts the expired rows one cleanup run removed
type CleanupResult struct {
	Holdings int64 `json:"holdings"`
	Cash     int64 `json:"cash"`
	Ticks    int64 `json:"ticks"`
}

// Total returns the number of removed rows
func (r CleanupResult) Total() int64 {
	return r.Holdings + r.Cash + r.Ticks
}

// CleanupJob drops expired wallet snapshots and persisted ticks. Expired rows are
// still served as stale fallbacks until this job removes them.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger

	mu   sync.Mutex
	last CleanupResult
}

func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run deletes expired holdings, cash and tick rows
func (j *CleanupJob) Run() error {
	var result CleanupResult
	for _, step := range []struct {
		table string
		count *int64
	}{
		{TableWalletHoldings, &result.Holdings},
		{TableWalletCash, &result.Cash},
		{TableLastTicks, &result.Ticks},
	} {
		deleted, err := j.repo.DeleteExpired(step.table)
		if err != nil {
			j.log.Error().Err(err).Str("table", step.table).Msg("Failed to drop expired client data")
			return fmt.Errorf("cleanup %s: %w", step.table, err)
		}
		*step.count = deleted
	}

	j.mu.Lock()
	j.last = result
	j.mu.Unlock()

	if result.Total() == 0 {
		j.log.Debug().Msg("No expired wallet snapshots or ticks")
		return nil
	}
	j.log.Info().
		Int64("holdings", result.Holdings).
		Int64("cash", result.Cash).
		Int64("ticks", result.Ticks).
		Msg("Dropped expired wallet snapshots and ticks")
	return nil
}

// LastResult returns the counts of the most recent successful run
func (j *CleanupJob) LastResult() CleanupResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
