// Package main seeds a development database with a demo catalog and prints
// an admin access token for calling the API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"inventario/internal/config"
	appctx "inventario/internal/core/context"
	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain/auth"
	"inventario/internal/domain/catalogs/product"
	"inventario/internal/infrastructure/storage/postgres"
	"inventario/internal/infrastructure/storage/postgres/catalog_repo"
	"inventario/pkg/logger"
)

type demoProduct struct {
	code     string
	name     string
	quantity int64
	cost     string
	warehouse    int
}

// Two warehouses so scoped counts can be tried out.
var demoCatalog = []demoProduct{
	{"TORN-0001", "Tornillo hexagonal 1/4\"", 1200, "0.35", 0},
	{"TORN-0002", "Tornillo autorroscante 8x1", 860, "0.22", 0},
	{"TUER-0001", "Tuerca hexagonal 1/4\"", 1500, "0.18", 0},
	{"ROND-0001", "Rondana plana 1/4\"", 2000, "0.05", 0},
	{"TALA-0001", "Taladro percutor 1/2\"", 12, "1249.90", 1},
	{"BROC-0001", "Juego de brocas 13 pzas", 35, "289.00", 1},
	{"CINT-0001", "Cinta métrica 5 m", 48, "119.50", 1},
	{"GUAN-0001", "Guantes de carnaza", 0, "64.00", 1},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.URL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	repo := catalog_repo.NewProductRepo(txManager)

	if err := seedCatalog(ctx, txManager, repo, log); err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}

	token, expiresAt, err := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWT.Secret)).
		GenerateAccessToken(appctx.UserContext{
			UserID:  "seed-admin",
			Name:    "Seed Admin",
			IsAdmin: true,
		})
	if err != nil {
		log.Fatalw("failed to sign admin token", "error", err)
	}

	log.Info("seeding completed successfully")
	fmt.Printf("\nadmin token (expires %s):\n%s\n", expiresAt.Format(time.RFC3339), token)
}

func seedCatalog(ctx context.Context, txm *postgres.TxManager, repo *catalog_repo.ProductRepo, log *logger.Logger) error {
	existing, err := repo.List(ctx, product.ListFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("check catalog: %w", err)
	}
	if existing.TotalCount > 0 {
		log.Infow("catalog already seeded, skipping", "products", existing.TotalCount)
		return nil
	}

	warehouses := []id.ID{id.New(), id.New()}
	now := time.Now().UTC()

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, d := range demoCatalog {
			cost, err := types.NewMoneyFromString(d.cost)
			if err != nil {
				return fmt.Errorf("parse cost of %s: %w", d.code, err)
			}
			wh := warehouses[d.warehouse]
			p := &product.Product{
				ID:          id.New(),
				Code:        d.code,
				Name:        d.name,
				WarehouseID: &wh,
				Quantity:    d.quantity,
				Cost:        types.MinorUnitsFromMoney(cost),
				Active:      true,
				Version:     1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := repo.Create(ctx, p); err != nil {
				return fmt.Errorf("create %s: %w", d.code, err)
			}
		}
		log.Infow("catalog seeded",
			"products", len(demoCatalog),
			"warehouse_a", warehouses[0],
			"warehouse_b", warehouses[1],
		)
		return nil
	})
}
