package database

import (
	"context"
	"fmt"
	"time"
)

func (s *SQLite) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS bar_data (
  symbol TEXT NOT NULL,
  exchange TEXT NOT NULL,
  interval TEXT NOT NULL,
  datetime INTEGER NOT NULL, -- unix nano
  gateway_name TEXT NOT NULL DEFAULT '',
  volume TEXT NOT NULL,
  open_interest TEXT NOT NULL,
  open_price TEXT NOT NULL,
  high_price TEXT NOT NULL,
  low_price TEXT NOT NULL,
  close_price TEXT NOT NULL,
  PRIMARY KEY (symbol, exchange, interval, datetime)
);`,
		`
CREATE TABLE IF NOT EXISTS tick_data (
  symbol TEXT NOT NULL,
  exchange TEXT NOT NULL,
  datetime INTEGER NOT NULL,
  gateway_name TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  volume TEXT NOT NULL,
  open_interest TEXT NOT NULL,
  last_price TEXT NOT NULL,
  last_volume TEXT NOT NULL,
  limit_up TEXT NOT NULL,
  limit_down TEXT NOT NULL,
  open_price TEXT NOT NULL,
  high_price TEXT NOT NULL,
  low_price TEXT NOT NULL,
  pre_close TEXT NOT NULL,
  bids TEXT NOT NULL, -- JSON [[price, volume], ...]
  asks TEXT NOT NULL,
  PRIMARY KEY (symbol, exchange, datetime)
);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
