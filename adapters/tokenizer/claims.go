package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the session identity
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
}
