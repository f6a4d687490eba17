package stocktaketest

import (
	"inventario/internal/core/numerator"
	"inventario/internal/domain/catalogs/product"
	"inventario/internal/domain/stocktake"
)

// Kit bundles a stocktake service wired to in-memory storage.
type Kit struct {
	DB       *DB
	Sessions *SessionRepo
	Products *ProductRepo
	Tx       *TxManager
	Catalog  *product.Service
	Mutator  *FailingMutator
	Audit    *AuditLog
	Service  *stocktake.Service
}

// NewKit wires a fresh in-memory stocktake service. Stock mutations go
// through the real product service, wrapped by Mutator for fault injection.
func NewKit() *Kit {
	db := NewDB()
	txm := NewTxManager(db)
	products := NewProductRepo(db)
	sessions := NewSessionRepo(db)
	catalog := product.NewService(products, txm)
	mutator := &FailingMutator{Next: catalog}
	auditLog := &AuditLog{}

	svc := stocktake.NewService(stocktake.ServiceConfig{
		Repo:      sessions,
		Catalog:   catalog,
		Stock:     mutator,
		Numerator: &numerator.SequenceGenerator{},
		TxManager: txm,
		Audit:     auditLog,
		History:   auditLog,
	})

	return &Kit{
		DB:       db,
		Sessions: sessions,
		Products: products,
		Tx:       txm,
		Catalog:  catalog,
		Mutator:  mutator,
		Audit:    auditLog,
		Service:  svc,
	}
}
