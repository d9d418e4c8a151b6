package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/betbot/fxcore/internal/domain"
)

// SQLite 基于 modernc.org/sqlite 的 Manager 实现
type SQLite struct {
	db *sql.DB
}

var _ Manager = (*SQLite)(nil)

// OpenSQLite 打开（必要时创建）数据库文件并执行迁移
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("database: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toNano(t time.Time) int64 {
	return t.UnixNano()
}

func fromNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// startNano/endNano 零值表示不限
func startNano(t time.Time) int64 {
	if t.IsZero() {
		return -1 << 63
	}
	return t.UnixNano()
}

func endNano(t time.Time) int64 {
	if t.IsZero() {
		return 1<<63 - 1
	}
	return t.UnixNano()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type scanner interface {
	Scan(dest ...any) error
}

const barColumns = `symbol, exchange, interval, datetime, gateway_name, volume, open_interest,
  open_price, high_price, low_price, close_price`

func scanBar(row scanner) (*domain.Bar, error) {
	var (
		b                                       domain.Bar
		exchange, interval                      string
		ts                                      int64
		volume, oi, open, high, low, closePrice string
	)
	if err := row.Scan(&b.Symbol, &exchange, &interval, &ts, &b.GatewayName, &volume, &oi,
		&open, &high, &low, &closePrice); err != nil {
		return nil, err
	}
	b.Exchange = domain.Exchange(exchange)
	b.Interval = domain.Interval(interval)
	b.Datetime = fromNano(ts)
	b.Volume = parseDecimal(volume)
	b.OpenInterest = parseDecimal(oi)
	b.OpenPrice = parseDecimal(open)
	b.HighPrice = parseDecimal(high)
	b.LowPrice = parseDecimal(low)
	b.ClosePrice = parseDecimal(closePrice)
	return &b, nil
}

// SaveBars 批量写入 K 线（单事务）
func (s *SQLite) SaveBars(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO bar_data (`+barColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, exchange, interval, datetime) DO UPDATE SET
  gateway_name=excluded.gateway_name,
  volume=excluded.volume,
  open_interest=excluded.open_interest,
  open_price=excluded.open_price,
  high_price=excluded.high_price,
  low_price=excluded.low_price,
  close_price=excluded.close_price`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Symbol, string(b.Exchange), string(b.Interval), toNano(b.Datetime), b.GatewayName,
			b.Volume.String(), b.OpenInterest.String(),
			b.OpenPrice.String(), b.HighPrice.String(), b.LowPrice.String(), b.ClosePrice.String(),
		); err != nil {
			return fmt.Errorf("save bar %s: %w", b.VtSymbol(), err)
		}
	}
	return tx.Commit()
}

// LoadBars 按时间升序读取 [start, end] 区间的 K 线，end 为零值表示到最新
func (s *SQLite) LoadBars(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval, start, end time.Time) ([]*domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+barColumns+` FROM bar_data
WHERE symbol=? AND exchange=? AND interval=? AND datetime>=? AND datetime<=?
ORDER BY datetime ASC`,
		symbol, string(exchange), string(interval), startNano(start), endNano(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) edgeBar(ctx context.Context, order, symbol string, exchange domain.Exchange, interval domain.Interval) (*domain.Bar, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+barColumns+` FROM bar_data
WHERE symbol=? AND exchange=? AND interval=?
ORDER BY datetime `+order+` LIMIT 1`,
		symbol, string(exchange), string(interval))
	b, err := scanBar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	return b, err
}

// NewestBar 最新一根 K 线
func (s *SQLite) NewestBar(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval) (*domain.Bar, error) {
	return s.edgeBar(ctx, "DESC", symbol, exchange, interval)
}

// OldestBar 最早一根 K 线
func (s *SQLite) OldestBar(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval) (*domain.Bar, error) {
	return s.edgeBar(ctx, "ASC", symbol, exchange, interval)
}

// BarStatistics 按 (symbol, exchange, interval) 汇总
func (s *SQLite) BarStatistics(ctx context.Context) ([]BarOverview, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, exchange, interval, COUNT(*), MIN(datetime), MAX(datetime)
FROM bar_data
GROUP BY symbol, exchange, interval
ORDER BY symbol, exchange, interval`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BarOverview
	for rows.Next() {
		var (
			o                  BarOverview
			exchange, interval string
			start, end         int64
		)
		if err := rows.Scan(&o.Symbol, &exchange, &interval, &o.Count, &start, &end); err != nil {
			return nil, err
		}
		o.Exchange = domain.Exchange(exchange)
		o.Interval = domain.Interval(interval)
		o.Start = fromNano(start)
		o.End = fromNano(end)
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteBars 删除某合约某周期的全部 K 线，返回删除条数
func (s *SQLite) DeleteBars(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bar_data WHERE symbol=? AND exchange=? AND interval=?`,
		symbol, string(exchange), string(interval))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Clean 删除 symbol 的全部 K 线和 Tick
func (s *SQLite) Clean(ctx context.Context, symbol string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bar_data WHERE symbol=?`, symbol); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tick_data WHERE symbol=?`, symbol); err != nil {
		return err
	}
	return tx.Commit()
}

const tickColumns = `symbol, exchange, datetime, gateway_name, name, volume, open_interest,
  last_price, last_volume, limit_up, limit_down, open_price, high_price, low_price, pre_close, bids, asks`

func encodeLevels(levels [domain.DepthLevels]domain.PriceLevel) (string, error) {
	out := make([][2]string, 0, domain.DepthLevels)
	for _, l := range levels {
		out = append(out, [2]string{l.Price.String(), l.Volume.String()})
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func decodeLevels(raw string) ([domain.DepthLevels]domain.PriceLevel, error) {
	var levels [domain.DepthLevels]domain.PriceLevel
	var in [][2]string
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return levels, err
	}
	for i := 0; i < len(in) && i < domain.DepthLevels; i++ {
		levels[i] = domain.PriceLevel{Price: parseDecimal(in[i][0]), Volume: parseDecimal(in[i][1])}
	}
	return levels, nil
}

func scanTick(row scanner) (*domain.Tick, error) {
	var (
		t                                     domain.Tick
		exchange                              string
		ts                                    int64
		volume, oi, last, lastVol, up, down   string
		open, high, low, preClose, bids, asks string
	)
	if err := row.Scan(&t.Symbol, &exchange, &ts, &t.GatewayName, &t.Name, &volume, &oi,
		&last, &lastVol, &up, &down, &open, &high, &low, &preClose, &bids, &asks); err != nil {
		return nil, err
	}
	t.Exchange = domain.Exchange(exchange)
	t.Datetime = fromNano(ts)
	t.Volume = parseDecimal(volume)
	t.OpenInterest = parseDecimal(oi)
	t.LastPrice = parseDecimal(last)
	t.LastVolume = parseDecimal(lastVol)
	t.LimitUp = parseDecimal(up)
	t.LimitDown = parseDecimal(down)
	t.OpenPrice = parseDecimal(open)
	t.HighPrice = parseDecimal(high)
	t.LowPrice = parseDecimal(low)
	t.PreClose = parseDecimal(preClose)

	var err error
	if t.Bids, err = decodeLevels(bids); err != nil {
		return nil, fmt.Errorf("decode bids: %w", err)
	}
	if t.Asks, err = decodeLevels(asks); err != nil {
		return nil, fmt.Errorf("decode asks: %w", err)
	}
	return &t, nil
}

// SaveTicks 批量写入 Tick（单事务）
func (s *SQLite) SaveTicks(ctx context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO tick_data (`+tickColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		bids, err := encodeLevels(t.Bids)
		if err != nil {
			return err
		}
		asks, err := encodeLevels(t.Asks)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			t.Symbol, string(t.Exchange), toNano(t.Datetime), t.GatewayName, t.Name,
			t.Volume.String(), t.OpenInterest.String(),
			t.LastPrice.String(), t.LastVolume.String(), t.LimitUp.String(), t.LimitDown.String(),
			t.OpenPrice.String(), t.HighPrice.String(), t.LowPrice.String(), t.PreClose.String(),
			bids, asks,
		); err != nil {
			return fmt.Errorf("save tick %s: %w", t.VtSymbol(), err)
		}
	}
	return tx.Commit()
}

// LoadTicks 按时间升序读取 Tick
func (s *SQLite) LoadTicks(ctx context.Context, symbol string, exchange domain.Exchange, start, end time.Time) ([]*domain.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+tickColumns+` FROM tick_data
WHERE symbol=? AND exchange=? AND datetime>=? AND datetime<=?
ORDER BY datetime ASC`,
		symbol, string(exchange), startNano(start), endNano(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// NewestTick 最新一条 Tick
func (s *SQLite) NewestTick(ctx context.Context, symbol string, exchange domain.Exchange) (*domain.Tick, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+tickColumns+` FROM tick_data
WHERE symbol=? AND exchange=?
ORDER BY datetime DESC LIMIT 1`,
		symbol, string(exchange))
	t, err := scanTick(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	return t, err
}
