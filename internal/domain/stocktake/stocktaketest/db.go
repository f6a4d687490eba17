// Package stocktaketest provides in-memory implementations of the stocktake
// and product repositories plus a transaction manager that rolls back on
// error. Intended for tests only.
package stocktaketest

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"inventario/internal/core/id"
	"inventario/internal/core/tx"
	"inventario/internal/domain/catalogs/product"
	"inventario/internal/domain/stocktake"
)

// DB is the shared in-memory state behind the fake repositories.
type DB struct {
	mu sync.Mutex

	// txMu serializes transactions.
	txMu sync.Mutex

	sessions  map[id.ID]stocktake.Session
	details   map[id.ID]stocktake.Detail
	products  map[id.ID]product.Product
	movements []product.Movement

	failures map[string][]error
}

// NewDB creates an empty store.
func NewDB() *DB {
	return &DB{
		sessions: make(map[id.ID]stocktake.Session),
		details:  make(map[id.ID]stocktake.Detail),
		products: make(map[id.ID]product.Product),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next call of op return err. Ops are named after the
// repository method, e.g. "UpdateStatus" or "AdjustQuantity".
func (db *DB) FailNext(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = append(db.failures[op], err)
}

// takeFailure must be called with db.mu held.
func (db *DB) takeFailure(op string) error {
	queue := db.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	db.failures[op] = queue[1:]
	return err
}

// DropDetail removes a line directly from storage.
func (db *DB) DropDetail(detailID id.ID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.details, detailID)
}

type snapshot struct {
	sessions  map[id.ID]stocktake.Session
	details   map[id.ID]stocktake.Detail
	products  map[id.ID]product.Product
	movements []product.Movement
}

func (db *DB) snapshot() snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return snapshot{
		sessions:  maps.Clone(db.sessions),
		details:   maps.Clone(db.details),
		products:  maps.Clone(db.products),
		movements: append([]product.Movement(nil), db.movements...),
	}
}

func (db *DB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sessions = s.sessions
	db.details = s.details
	db.products = s.products
	db.movements = s.movements
}

// TxManager runs fn against DB and restores the prior state when fn fails.
// Nested calls join the outer transaction.
type TxManager struct {
	db *DB

	ReadOnlyCalls atomic.Int32
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// NewTxManager creates a transaction manager over db.
func NewTxManager(db *DB) *TxManager {
	return &TxManager{db: db}
}

type txKey struct{}

// RunInTransaction implements tx.Manager.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.db.txMu.Lock()
	defer m.db.txMu.Unlock()

	before := m.db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.db.restore(before)
		return err
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager. Reads never change the fake
// database, so no snapshot is taken.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.ReadOnlyCalls.Add(1)
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, txKey{}, true))
}

// InTx reports whether ctx carries a fake transaction.
func InTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}
