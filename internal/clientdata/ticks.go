package clientdata

import (
	"encoding/json"
	"fmt"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// SaveTicks persists the latest tick per symbol for warm start.
func (r *Repository) SaveTicks(ticks map[domain.Symbol]domain.Tick) error {
	entries := make(map[string]interface{}, len(ticks))
	for symbol, tick := range ticks {
		entries[symbol.String()] = tick
	}
	return r.StoreMany(TableLastTicks, entries, TTLLastTick)
}

// LoadTicks returns the unexpired persisted ticks. Undecodable rows are skipped.
func (r *Repository) LoadTicks() ([]domain.Tick, error) {
	rows, err := r.GetAllFresh(TableLastTicks)
	if err != nil {
		return nil, fmt.Errorf("failed to load last ticks: %w", err)
	}

	ticks := make([]domain.Tick, 0, len(rows))
	for key, raw := range rows {
		var tick domain.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			continue
		}
		if tick.Symbol == "" {
			tick.Symbol = domain.NormalizeSymbol(key)
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}
