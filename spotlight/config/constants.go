package config

import "time"

// Application-wide constants organized by domain

// Database and Performance Constants
const (
	DefaultQueryTimeout = 30 * time.Second
	NetworkDialTimeout  = 5 * time.Second

	// Cache settings
	BalanceCacheSize = 10000

	MaxRetries = 3
)

// Economy Constants
const (
	// Defaults for injected EconomyConfig values
	DefaultDailyEarnCap = 50
	DefaultExchangeRate = 100.0 // coins credited per fiat unit
	DefaultWinBonus     = 25
)

// Auction Constants
const (
	// A weekly auction always runs seven sequential position windows.
	PositionsPerAuction = 7
	PositionWindow      = 15 * time.Minute

	DefaultAnchorHour = 18 // local time, on the configured weekday
	SweepInterval     = 30 * time.Second

	FinalizeMaxRetries = 3
)

// Boost Constants
const (
	BoostCleanupInterval = 15 * time.Minute
)

// Pagination Constants
const (
	DefaultPageSize = 10
	MaxPageSize     = 25
)

// API and Rate Limiting Constants
const (
	UserRateLimit   = 10
	RateLimitWindow = 1 * time.Minute

	RequestTimeout = 30 * time.Second
)
