package domain

import "time"

// Wallet tracks the trading history of one address. Created on the wallet's
// first observed trade and updated by the classifier on every subsequent one.
type Wallet struct {
	Address             string
	FirstSeenAt         time.Time
	LastSeenAt          time.Time
	FirstTradeTS        *time.Time
	TrackedUntil        *time.Time
	LifetimeNotionalUSD float64
}
