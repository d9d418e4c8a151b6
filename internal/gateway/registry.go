package gateway

import (
	"sort"
	"sync"

	"github.com/betbot/fxcore/internal/domain"
)

// ContractRegistry 网关实例自己的合约表：symbol -> 合约/名称。
// 由网关创建（或由调用方注入），行情解析时用来补全合约名称、过滤未知合约。
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]*domain.Contract
}

// NewContractRegistry 创建空表
func NewContractRegistry() *ContractRegistry {
	return &ContractRegistry{contracts: make(map[string]*domain.Contract)}
}

// Add 登记合约（按 symbol 覆盖）
func (r *ContractRegistry) Add(c *domain.Contract) {
	r.mu.Lock()
	r.contracts[c.Symbol] = c
	r.mu.Unlock()
}

// Get 按 symbol 查询
func (r *ContractRegistry) Get(symbol string) (*domain.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[symbol]
	return c, ok
}

// Has 是否已登记
func (r *ContractRegistry) Has(symbol string) bool {
	_, ok := r.Get(symbol)
	return ok
}

// Name 合约名称，未登记时返回 symbol
func (r *ContractRegistry) Name(symbol string) string {
	if c, ok := r.Get(symbol); ok && c.Name != "" {
		return c.Name
	}
	return symbol
}

// Symbols 已登记的 symbol（排序）
func (r *ContractRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.contracts))
	for s := range r.contracts {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len 合约数
func (r *ContractRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
