// Package store persists instrument metadata, daily bars and analysis output
// in SQLite. The schema is created on open; price rows are upserted on the
// (symbol, date, interval) key so re-fetching a window never duplicates bars.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS stocks (
	symbol          TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	sector          TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	exchange        TEXT NOT NULL DEFAULT 'NSE',
	instrument_type TEXT NOT NULL DEFAULT 'EQ',
	lot_size        INTEGER NOT NULL DEFAULT 1,
	tick_size       REAL NOT NULL DEFAULT 0.05,
	market_cap_cr   REAL NOT NULL DEFAULT 0,
	provider        TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_data (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol   TEXT NOT NULL,
	date     TEXT NOT NULL,
	interval TEXT NOT NULL DEFAULT '1D',
	open     REAL NOT NULL,
	high     REAL NOT NULL,
	low      REAL NOT NULL,
	close    REAL NOT NULL,
	volume   INTEGER NOT NULL DEFAULT 0,
	provider TEXT NOT NULL DEFAULT '',
	UNIQUE(symbol, date, interval)
);
CREATE INDEX IF NOT EXISTS idx_price_data_symbol_date ON price_data(symbol, date);

CREATE TABLE IF NOT EXISTS recommendations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol     TEXT NOT NULL,
	action     TEXT NOT NULL,
	confidence REAL NOT NULL,
	score      REAL NOT NULL,
	reasoning  TEXT NOT NULL DEFAULT '',
	price      REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recommendations_symbol ON recommendations(symbol, created_at);
`

const dateLayout = "2006-01-02"

type SQLiteStore struct {
	db *sql.DB
}

var _ interfaces.Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the SQLite database at path. ":memory:"
// works for tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under the poll loop's write bursts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StoreStockInfo(ctx context.Context, info *types.StockInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, name, sector, industry, exchange, instrument_type, lot_size, tick_size, market_cap_cr, provider, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			industry = excluded.industry,
			exchange = excluded.exchange,
			instrument_type = excluded.instrument_type,
			lot_size = excluded.lot_size,
			tick_size = excluded.tick_size,
			market_cap_cr = excluded.market_cap_cr,
			provider = excluded.provider,
			updated_at = CURRENT_TIMESTAMP`,
		symbols.Canonical(info.Symbol), info.Name, info.Sector, info.Industry,
		info.Exchange, info.InstrumentType, info.LotSize, info.TickSize,
		info.MarketCapCr, info.Provider,
	)
	if err != nil {
		return fmt.Errorf("storing stock info for %s: %w", info.Symbol, err)
	}
	return nil
}

func (s *SQLiteStore) GetStockBySymbol(ctx context.Context, symbol string) (*types.StockInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, name, sector, industry, exchange, instrument_type, lot_size, tick_size, market_cap_cr, provider
		FROM stocks WHERE symbol = ?`, symbols.Canonical(symbol))

	var info types.StockInfo
	err := row.Scan(&info.Symbol, &info.Name, &info.Sector, &info.Industry,
		&info.Exchange, &info.InstrumentType, &info.LotSize, &info.TickSize,
		&info.MarketCapCr, &info.Provider)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading stock %s: %w", symbol, err)
	}
	return &info, nil
}

// StorePriceData upserts bars and returns the number written. The whole batch
// goes in one transaction.
func (s *SQLiteStore) StorePriceData(ctx context.Context, symbol string, interval types.Interval, bars []types.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	canonical := symbols.Canonical(symbol)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_data (symbol, date, interval, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date, interval) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx, canonical, bar.Date.Format(dateLayout), string(interval),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			return stored, fmt.Errorf("storing bar %s/%s: %w", canonical, bar.Date.Format(dateLayout), err)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing price data: %w", err)
	}
	return stored, nil
}

// GetLatestPriceData returns up to days of the most recent daily bars in
// ascending date order.
func (s *SQLiteStore) GetLatestPriceData(ctx context.Context, symbol string, days int) ([]types.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM price_data
		WHERE symbol = ? AND interval = '1D'
		ORDER BY date DESC
		LIMIT ?`, symbols.Canonical(symbol), days)
	if err != nil {
		return nil, fmt.Errorf("loading price data for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var bar types.Bar
		var dateStr string
		if err := rows.Scan(&dateStr, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing bar date %q: %w", dateStr, err)
		}
		bar.Date = date
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to ascending order for the indicator code.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func (s *SQLiteStore) StoreRecommendation(ctx context.Context, rec *types.Recommendation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendations (symbol, action, confidence, score, reasoning, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		symbols.Canonical(rec.Symbol), rec.Action, rec.Confidence, rec.Score,
		rec.Reasoning, rec.Price, rec.Time.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing recommendation for %s: %w", rec.Symbol, err)
	}
	return nil
}
