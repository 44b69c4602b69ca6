package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const tradeColumns = `id, trader_handle, instrument_type, direction, hub,
	volume::TEXT, entry_price::TEXT, ref_price::TEXT,
	status, close_price::TEXT, realized_pnl::TEXT,
	notes, venue, mirror_id, counterparty, created_at, closed_at`

func (s *PostgresStore) GetTrader(ctx context.Context, handle string) (*model.Trader, error) {
	var t model.Trader
	var capital string
	err := s.pool.QueryRow(ctx,
		`SELECT handle, display_name, status, starting_capital::TEXT,
		        COALESCE(team_id, ''), otc_available
		 FROM traders WHERE handle = $1`, handle).
		Scan(&t.Handle, &t.DisplayName, &t.Status, &capital, &t.TeamID, &t.OTCAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trader %s: %w", handle, err)
	}
	t.StartingCapital, _ = decimal.NewFromString(capital)
	return &t, nil
}

func (s *PostgresStore) ListActiveTraders(ctx context.Context) ([]model.Trader, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT handle, display_name, status, starting_capital::TEXT,
		        COALESCE(team_id, ''), otc_available
		 FROM traders WHERE status = 'ACTIVE' ORDER BY handle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traders []model.Trader
	for rows.Next() {
		var t model.Trader
		var capital string
		if err := rows.Scan(&t.Handle, &t.DisplayName, &t.Status, &capital,
			&t.TeamID, &t.OTCAvailable); err != nil {
			return nil, err
		}
		t.StartingCapital, _ = decimal.NewFromString(capital)
		traders = append(traders, t)
	}
	return traders, rows.Err()
}

func (s *PostgresStore) SetOTCAvailable(ctx context.Context, handle string, available bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE traders SET otc_available = $2 WHERE handle = $1`, handle, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx, insertTradeSQL, insertTradeArgs(t)...)
	return err
}

// InsertTradePair writes both OTC legs in one transaction so the pair either
// lands whole or not at all. Cross-references are known up front.
func (s *PostgresStore) InsertTradePair(ctx context.Context, a, b *model.Trade) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertTradeSQL, insertTradeArgs(a)...); err != nil {
		return fmt.Errorf("insert pair leg %s: %w", a.ID, err)
	}
	if _, err := tx.Exec(ctx, insertTradeSQL, insertTradeArgs(b)...); err != nil {
		return fmt.Errorf("insert pair leg %s: %w", b.ID, err)
	}
	return tx.Commit(ctx)
}

const insertTradeSQL = `INSERT INTO trades
	(id, trader_handle, instrument_type, direction, hub,
	 volume, entry_price, ref_price, status, close_price, realized_pnl,
	 notes, venue, mirror_id, counterparty, created_at, closed_at)
	VALUES ($1, $2, $3, $4, $5,
	        $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10::NUMERIC, $11::NUMERIC,
	        $12, $13, $14, $15, $16, $17)`

func insertTradeArgs(t *model.Trade) []any {
	var closedAt *time.Time
	if !t.ClosedAt.IsZero() {
		closedAt = &t.ClosedAt
	}
	return []any{
		t.ID, t.Trader, string(t.Type), string(t.Direction), t.Hub,
		t.Volume.String(), t.EntryPrice.String(), t.RefPrice.String(),
		string(t.Status), t.ClosePrice.String(), t.RealizedPnL.String(),
		t.Notes, string(t.Venue), t.MirrorID, t.Counterparty,
		t.CreatedAt, closedAt,
	}
}

func (s *PostgresStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTradesByTrader(ctx context.Context, handle string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE trader_handle = $1 ORDER BY created_at DESC`, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// CloseTrade's WHERE clause is the write-write race guard: the transition
// only fires while the row is still OPEN.
func (s *PostgresStore) CloseTrade(ctx context.Context, id string, closePrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trades
		 SET status = 'CLOSED', close_price = $2::NUMERIC,
		     realized_pnl = $3::NUMERIC, closed_at = $4
		 WHERE id = $1 AND status = 'OPEN'`,
		id, closePrice.String(), realizedPnL.String(), closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var status string
		if err := s.pool.QueryRow(ctx,
			`SELECT status FROM trades WHERE id = $1`, id).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return ErrAlreadyClosed
	}
	return nil
}

func (s *PostgresStore) DeleteTrade(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertFeedEntry(ctx context.Context, e *model.FeedEntry) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO trade_feed (trader_handle, action, summary, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		e.Trader, e.Action, e.Summary, e.CreatedAt).Scan(&e.ID)
}

func (s *PostgresStore) ListFeed(ctx context.Context, limit int) ([]model.FeedEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, trader_handle, action, summary, created_at
		 FROM trade_feed ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.FeedEntry
	for rows.Next() {
		var e model.FeedEntry
		if err := rows.Scan(&e.ID, &e.Trader, &e.Action, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO performance_snapshots
		 (trader_handle, snapshot_date, equity, realized_pnl, unrealized_pnl, trade_count, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
		snap.Trader, snap.Date, snap.Equity.String(),
		snap.RealizedPnL.String(), snap.UnrealizedPnL.String(),
		snap.TradeCount, snap.CreatedAt)
	return err
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, handle string) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trader_handle, snapshot_date,
		        equity::TEXT, realized_pnl::TEXT, unrealized_pnl::TEXT,
		        trade_count, created_at
		 FROM performance_snapshots
		 WHERE trader_handle = $1 ORDER BY snapshot_date ASC`, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var equity, realized, unrealized string
		if err := rows.Scan(&snap.Trader, &snap.Date, &equity, &realized,
			&unrealized, &snap.TradeCount, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.Equity, _ = decimal.NewFromString(equity)
		snap.RealizedPnL, _ = decimal.NewFromString(realized)
		snap.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// scanTrade reads one row in tradeColumns order.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*model.Trade, error) {
	var t model.Trade
	var volume, entryPrice, refPrice, closePrice, realizedPnL string
	var closedAt *time.Time

	err := row.Scan(&t.ID, &t.Trader, &t.Type, &t.Direction, &t.Hub,
		&volume, &entryPrice, &refPrice,
		&t.Status, &closePrice, &realizedPnL,
		&t.Notes, &t.Venue, &t.MirrorID, &t.Counterparty,
		&t.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	t.Volume, _ = decimal.NewFromString(volume)
	t.EntryPrice, _ = decimal.NewFromString(entryPrice)
	t.RefPrice, _ = decimal.NewFromString(refPrice)
	t.ClosePrice, _ = decimal.NewFromString(closePrice)
	t.RealizedPnL, _ = decimal.NewFromString(realizedPnL)
	if closedAt != nil {
		t.ClosedAt = *closedAt
	}
	return &t, nil
}
