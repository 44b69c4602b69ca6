// Package trade implements the trade ledger and risk engine: admission,
// the OPEN→CLOSED lifecycle, OTC pair mirroring, and the leaderboard.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

// Event types emitted by the engine. The engine never owns delivery; a Sink
// (WebSocket hub in this deployment) fans events out to clients.
const (
	EventTradeOpened            = "trade_opened"
	EventTradeClosed            = "trade_closed"
	EventLeaderboardInvalidated = "leaderboard_invalidated"
	EventTradeFeed              = "trade_feed"
	EventOTCMirrorMissing       = "otc_mirror_missing"
)

// Event is a domain event. Fields are populated per type; zero-valued
// fields are omitted on the wire.
type Event struct {
	Type       string `json:"type"`
	Trader     string `json:"trader,omitempty"`
	TradeID    string `json:"trade_id,omitempty"`
	Instrument string `json:"instrument,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Hub        string `json:"hub,omitempty"`
	Volume     string `json:"volume,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// Sink receives domain events. Implementations must not block: trade
// execution latency is not allowed to depend on event delivery.
type Sink interface {
	Publish(Event)
}
