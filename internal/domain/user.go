package domain

// User is a subscriber with a linked custody wallet.
// Corresponds to the users table.
type User struct {
	ID              string
	WalletPublicKey string // empty until a custody wallet is linked
	EncryptedSecret []byte // AES-256-GCM blob, managed by the custody vault
	Settings        UserSettings
	CreatedAt       int64 // Unix timestamp in milliseconds
}

// HasWallet reports whether a custody wallet is linked.
func (u *User) HasWallet() bool {
	return u.WalletPublicKey != ""
}
