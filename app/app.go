package app

import (
	"context"
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mbolis/dcforms/config"
	"github.com/mbolis/dcforms/database"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/pos"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	Nonces         *httpx.NonceIssuer
	POS            *pos.Registry
	IntegrationLog *database.IntegrationLog
	config.Config
}

func New(db *sql.DB, cfg config.Config) App {
	ilog := database.NewIntegrationLog(db)
	return App{
		DB:             db,
		BearerServer:   httpx.NewBearerServer(db, cfg.TokenSecret, cfg.TokenTTL),
		Nonces:         httpx.NewNonceIssuer(cfg.TokenSecret, cfg.NonceTTL),
		POS:            pos.NewRegistry(pos.Options{Log: ilog}),
		IntegrationLog: ilog,
		Config:         cfg,
	}
}

// Adapter resolves the POS adapter selected by the current configuration.
func (app App) Adapter(ctx context.Context) (pos.Adapter, error) {
	return app.POS.Resolve(ctx, app.Config.POS)
}
