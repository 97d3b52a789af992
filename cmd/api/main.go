package main

import (
	"context"
	"net/http"

	"github.com/SaleemAtefMater/specter-transfer/internal/api"
	"github.com/SaleemAtefMater/specter-transfer/internal/config"
	"github.com/SaleemAtefMater/specter-transfer/internal/debt"
	"github.com/SaleemAtefMater/specter-transfer/internal/ledger"
	"github.com/SaleemAtefMater/specter-transfer/internal/logger"
	"github.com/SaleemAtefMater/specter-transfer/internal/migration"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
	"github.com/SaleemAtefMater/specter-transfer/internal/store/memory"
	"github.com/SaleemAtefMater/specter-transfer/internal/store/postgres"
	"github.com/SaleemAtefMater/specter-transfer/internal/transfer"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	ctx := context.Background()

	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		st = memory.New()
		log.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		pg, err := postgres.New(ctx, cfg.DBSource)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to connect to database")
		}
		if err := migration.Apply(ctx, pg.Pool()); err != nil {
			log.Fatal().Err(err).Msg("unable to apply migrations")
		}
		st = pg
	}
	defer st.Close()

	ledgerSvc := ledger.New(st, log)
	transferSvc := transfer.New(st, ledgerSvc, log)
	debtSvc := debt.New(st, ledgerSvc, log)

	handler := api.NewHandler(ledgerSvc, transferSvc, debtSvc, log)

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Str("backend", cfg.StoreBackend).
		Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, handler.Router()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
