package clientdata

import "time"

// TTL constants for cached client data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Wallet snapshots go stale quickly but remain a usable fallback while the API is down
	TTLWalletHoldings = 5 * time.Minute
	TTLWalletCash     = 5 * time.Minute

	// Last known ticks seed the ticker cache on warm start
	TTLLastTick = 24 * time.Hour
)
