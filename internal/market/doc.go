// Package market ingests the streaming price feed.
//
// A Stream owns the feed connection (or the synthetic generator that replaces it),
// raw frames are turned into domain ticks by the normalizer, and a TickerCache keeps
// the latest materially-different tick per symbol for the valuation engine.
package market
