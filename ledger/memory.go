package ledger

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
)

// MemoryCustodyLedger is a mutex-guarded in-process custody ledger.
type MemoryCustodyLedger struct {
	mu      sync.RWMutex
	holders map[core.PositionID]core.Address
}

func NewMemoryCustodyLedger() *MemoryCustodyLedger {
	return &MemoryCustodyLedger{
		holders: make(map[core.PositionID]core.Address),
	}
}

// SetHolder registers a position with its initial holder. Used when a
// position is opened outside the engine.
func (l *MemoryCustodyLedger) SetHolder(position core.PositionID, holder core.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holders[position] = holder
}

func (l *MemoryCustodyLedger) CurrentHolder(position core.PositionID) (core.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	holder, ok := l.holders[position]
	if !ok {
		return "", fmt.Errorf("position %s is not registered", position)
	}
	return holder, nil
}

func (l *MemoryCustodyLedger) TransferCustody(position core.PositionID, from, to core.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	holder, ok := l.holders[position]
	if !ok {
		return fmt.Errorf("position %s is not registered", position)
	}
	if holder != from {
		return fmt.Errorf("position %s is held by %s, not %s", position, holder, from)
	}
	l.holders[position] = to
	return nil
}

// MemoryTokenLedger is a mutex-guarded in-process token ledger with
// ERC20-style balances and allowances.
type MemoryTokenLedger struct {
	mu         sync.RWMutex
	balances   map[core.Address]map[core.Address]decimal.Decimal
	allowances map[core.Address]map[core.Address]map[core.Address]decimal.Decimal
}

func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{
		balances:   make(map[core.Address]map[core.Address]decimal.Decimal),
		allowances: make(map[core.Address]map[core.Address]map[core.Address]decimal.Decimal),
	}
}

// Mint credits an account. Test and bootstrap helper.
func (l *MemoryTokenLedger) Mint(token, account core.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, account, amount)
}

// Approve grants spender the right to move up to amount of owner's funds.
func (l *MemoryTokenLedger) Approve(token, owner, spender core.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[token] == nil {
		l.allowances[token] = make(map[core.Address]map[core.Address]decimal.Decimal)
	}
	if l.allowances[token][owner] == nil {
		l.allowances[token][owner] = make(map[core.Address]decimal.Decimal)
	}
	l.allowances[token][owner][spender] = amount
}

// Allowance returns the remaining spending grant from owner to spender.
func (l *MemoryTokenLedger) Allowance(token, owner, spender core.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[token][owner][spender]
}

func (l *MemoryTokenLedger) BalanceOf(token, account core.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[token][account]
}

func (l *MemoryTokenLedger) TransferFrom(token, spender, owner, recipient core.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount %s is not positive", amount.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[token][owner]
	if balance.LessThan(amount) {
		return fmt.Errorf("balance %s of %s is below %s", balance.String(), owner, amount.String())
	}
	if spender != owner {
		allowance := l.allowances[token][owner][spender]
		if allowance.LessThan(amount) {
			return fmt.Errorf("allowance %s from %s to %s is below %s", allowance.String(), owner, spender, amount.String())
		}
		l.allowances[token][owner][spender] = allowance.Sub(amount)
	}

	l.balances[token][owner] = balance.Sub(amount)
	l.credit(token, recipient, amount)
	return nil
}

func (l *MemoryTokenLedger) credit(token, account core.Address, amount decimal.Decimal) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[core.Address]decimal.Decimal)
	}
	l.balances[token][account] = l.balances[token][account].Add(amount)
}

// BlockCounter is a HeightSource backed by an atomic counter. Tests and
// single-process deployments advance it explicitly.
type BlockCounter struct {
	height atomic.Uint64
}

func NewBlockCounter(start uint64) *BlockCounter {
	c := &BlockCounter{}
	c.height.Store(start)
	return c
}

func (c *BlockCounter) CurrentHeight() uint64 {
	return c.height.Load()
}

// Advance moves the counter forward by n blocks and returns the new height.
func (c *BlockCounter) Advance(n uint64) uint64 {
	return c.height.Add(n)
}
