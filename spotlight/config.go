package spotlight

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spotlightworks/spotlight/spotlight/config"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	DB      DBConfig      `toml:"db"`
	Economy EconomyConfig `toml:"economy"`
	Auction AuctionConfig `toml:"auction"`
	Boost   BoostConfig   `toml:"boost"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type ServerConfig struct {
	Addr           string `toml:"addr"`
	RateLimit      int    `toml:"rate_limit"`
	RateWindowSecs int    `toml:"rate_window_secs"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

// EconomyConfig carries the ledger's tunables. These were hardcoded in
// earlier iterations; they are injected here so deployments can vary the
// cap and rate without a rebuild.
type EconomyConfig struct {
	DailyEarnCap   int64   `toml:"daily_earn_cap"`
	ExchangeRate   float64 `toml:"exchange_rate"` // coins per fiat unit
	WinBonus       int64   `toml:"win_bonus"`
	AdminAccountID string  `toml:"admin_account_id"`
	HistoryPage    int     `toml:"history_page_size"`
}

type AuctionConfig struct {
	AnchorWeekday int `toml:"anchor_weekday"` // 0 = Sunday
	AnchorHour    int `toml:"anchor_hour"`
	SweepSecs     int `toml:"sweep_secs"`
}

type BoostConfig struct {
	CleanupMins int `toml:"cleanup_mins"`
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = config.UserRateLimit
	}
	if c.Server.RateWindowSecs == 0 {
		c.Server.RateWindowSecs = int(config.RateLimitWindow.Seconds())
	}
	if c.Economy.DailyEarnCap == 0 {
		c.Economy.DailyEarnCap = config.DefaultDailyEarnCap
	}
	if c.Economy.ExchangeRate == 0 {
		c.Economy.ExchangeRate = config.DefaultExchangeRate
	}
	if c.Economy.WinBonus == 0 {
		c.Economy.WinBonus = config.DefaultWinBonus
	}
	if c.Economy.HistoryPage == 0 {
		c.Economy.HistoryPage = config.DefaultPageSize
	}
	if c.Auction.AnchorHour == 0 {
		c.Auction.AnchorHour = config.DefaultAnchorHour
	}
	if c.Auction.SweepSecs == 0 {
		c.Auction.SweepSecs = int(config.SweepInterval.Seconds())
	}
	if c.Boost.CleanupMins == 0 {
		c.Boost.CleanupMins = int(config.BoostCleanupInterval.Minutes())
	}
}
