package spotlight

import (
	"context"
	"fmt"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/api"
	"github.com/spotlightworks/spotlight/spotlight/database"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
	"github.com/spotlightworks/spotlight/spotlight/economy/auction"
	"github.com/spotlightworks/spotlight/spotlight/economy/boost"
	"github.com/spotlightworks/spotlight/spotlight/economy/ledger"
)

// App wires the economy together: storage, ledger, auction engine, boost
// manager, background scheduler and the HTTP surface.
type App struct {
	Cfg     *Config
	Version string

	DB        *database.DB
	Ledger    *ledger.Ledger
	Engine    *auction.Engine
	Boosts    *boost.Manager
	Scheduler *auction.Scheduler
	Server    *api.Server
}

func New(cfg *Config, version string) *App {
	return &App{Cfg: cfg, Version: version}
}

// Setup connects storage and builds every component. The schema is
// created on first run.
func (a *App) Setup(ctx context.Context) error {
	db, err := database.New(ctx, database.DBConfig{
		Host:     a.Cfg.DB.Host,
		Port:     a.Cfg.DB.Port,
		User:     a.Cfg.DB.User,
		Password: a.Cfg.DB.Password,
		Database: a.Cfg.DB.Database,
		PoolSize: a.Cfg.DB.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db

	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	accounts := repositories.NewAccountRepository(db.BunDB())
	txns := repositories.NewTransactionRepository(db.BunDB())
	auctions := repositories.NewAuctionRepository(db.BunDB())
	boosts := repositories.NewBoostRepository(db.BunDB())

	a.Ledger = ledger.New(accounts, txns, ledger.Config{
		DailyEarnCap:   a.Cfg.Economy.DailyEarnCap,
		ExchangeRate:   a.Cfg.Economy.ExchangeRate,
		AdminAccountID: a.Cfg.Economy.AdminAccountID,
		HistoryPage:    a.Cfg.Economy.HistoryPage,
	})

	a.Engine = auction.NewEngine(auctions, a.Ledger, auction.NewLogNotifier(), auction.Config{
		AnchorWeekday: time.Weekday(a.Cfg.Auction.AnchorWeekday),
		AnchorHour:    a.Cfg.Auction.AnchorHour,
		WinBonus:      a.Cfg.Economy.WinBonus,
	})

	a.Boosts = boost.NewManager(boosts, a.Ledger)

	a.Scheduler = auction.NewScheduler(a.Engine, a.Boosts,
		time.Duration(a.Cfg.Auction.SweepSecs)*time.Second,
		time.Duration(a.Cfg.Boost.CleanupMins)*time.Minute)

	a.Server = api.NewServer(api.ServerConfig{
		Addr:       a.Cfg.Server.Addr,
		RateLimit:  a.Cfg.Server.RateLimit,
		RateWindow: time.Duration(a.Cfg.Server.RateWindowSecs) * time.Second,
	}, api.NewHandlers(a.Ledger, a.Engine, a.Boosts, a.DB, a.Version))

	return nil
}

// Start launches the background scheduler and the HTTP server. Listen
// blocks until shutdown.
func (a *App) Start() error {
	a.Scheduler.Start()
	return a.Server.Listen()
}

// Shutdown stops the scheduler, drains the HTTP server and closes
// storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.Scheduler.Shutdown()
	err := a.Server.Shutdown(ctx)
	a.DB.Close()
	return err
}
