package models

import "time"

// TxStatus is the lifecycle state of a purchase transaction. Pending is the only
// non-terminal state; terminal states are immutable.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxCanceled  TxStatus = "canceled"
	TxExpired   TxStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s TxStatus) Terminal() bool {
	return s == TxCompleted || s == TxCanceled || s == TxExpired
}

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Credits    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transaction records one purchase attempt, keyed by the provider payment id.
// (provider, payment_id) is unique; a completed transaction granted its credits
// exactly once.
type Transaction struct {
	ID          int64
	UserID      int64
	Provider    string
	PaymentID   string
	PackageCode string
	Currency    string
	Amount      int // minor units
	Credits     int
	Status      TxStatus
	RawPayload  string
	CreatedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// CreditEntry is one row of the append-only balance change log.
type CreditEntry struct {
	ID        int64
	UserID    int64
	Delta     int
	Reason    string
	Ref       string
	CreatedAt time.Time
}

// Package is a purchasable credit bundle.
type Package struct {
	ID              int64
	Code            string
	Title           string
	Description     string
	Currency        string
	PriceMinorUnits int
	Credits         int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PromoCode struct {
	ID        int64
	Code      string
	MaxUses   int
	Uses      int
	CreatedAt time.Time
}

// FeatureLog records one completed feature run for usage accounting.
type FeatureLog struct {
	ID        int64
	UserID    int64
	Feature   string
	Detail    string
	Charged   int
	CreatedAt time.Time
}
