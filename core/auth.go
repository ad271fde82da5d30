package core

import "time"

// Role is the authorization level carried by a session
type Role string

const (
	// RoleMember is assigned to every wallet on first login
	RoleMember Role = "member"

	// RoleAdmin unlocks the operator routes
	RoleAdmin Role = "admin"
)

// Nonce represents a login challenge issued to a wallet
type Nonce struct {
	WalletAddress string    `json:"walletAddress"` // Base58 public key of the wallet
	Challenge     string    `json:"challenge"`     // Text the wallet has to sign
	IssuedAt      time.Time `json:"issuedAt"`      // When the challenge was created
}

// User is the identity record linked to a wallet
type User struct {
	ID            string
	WalletAddress string
	Role          Role
	CreatedAt     time.Time
}

// SessionClaims represents an authenticated user session
type SessionClaims struct {
	UserID        string    // Identity record id
	WalletAddress string    // Wallet the session was issued to
	Role          Role      // Role at issuance time
	IssuedAt      time.Time // When the session was created
	ExpiresAt     time.Time // When the session stops being accepted
}

// ServiceCredential is a bearer token for the ledger provider
type ServiceCredential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the credential outlives now by more than margin.
func (c ServiceCredential) Valid(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}

	return c.ExpiresAt.Sub(now) > margin
}
