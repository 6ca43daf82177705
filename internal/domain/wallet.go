package domain

// TrackedWallet is a monitored alpha wallet. Wallets are deactivated on
// removal, never hard-deleted, so historical trade records keep a valid
// source wallet reference.
type TrackedWallet struct {
	Address  string
	Label    string
	IsActive bool
	AddedAt  int64 // Unix timestamp in milliseconds
}

// Subscription relates a user to a tracked wallet. It exists only while the
// wallet is active; per-user filtering happens downstream in the eligibility
// filter.
type Subscription struct {
	UserID        string
	WalletAddress string
	CreatedAt     int64 // Unix timestamp in milliseconds
}
