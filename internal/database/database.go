// Package database K 线 / Tick 历史数据存储。
package database

import (
	"context"
	"errors"
	"time"

	"github.com/betbot/fxcore/internal/domain"
)

// ErrNoData 查询结果为空
var ErrNoData = errors.New("database: no data")

// BarOverview 某合约某周期 K 线的统计信息
type BarOverview struct {
	Symbol   string
	Exchange domain.Exchange
	Interval domain.Interval
	Count    int64
	Start    time.Time
	End      time.Time
}

// Manager 历史数据管理接口
type Manager interface {
	LoadBars(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval, start, end time.Time) ([]*domain.Bar, error)
	LoadTicks(ctx context.Context, symbol string, exchange domain.Exchange, start, end time.Time) ([]*domain.Tick, error)

	// SaveBars/SaveTicks 同一 (symbol, exchange, [interval,] datetime) 覆盖写入
	SaveBars(ctx context.Context, bars []*domain.Bar) error
	SaveTicks(ctx context.Context, ticks []*domain.Tick) error

	// NewestBar/OldestBar/NewestTick 无数据时返回 ErrNoData
	NewestBar(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval) (*domain.Bar, error)
	OldestBar(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval) (*domain.Bar, error)
	NewestTick(ctx context.Context, symbol string, exchange domain.Exchange) (*domain.Tick, error)

	BarStatistics(ctx context.Context) ([]BarOverview, error)
	DeleteBars(ctx context.Context, symbol string, exchange domain.Exchange, interval domain.Interval) (int64, error)
	// Clean 删除某个 symbol 的全部 K 线和 Tick
	Clean(ctx context.Context, symbol string) error

	Close() error
}
