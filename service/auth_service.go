package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
	"github.com/sirupsen/logrus"
)

const noncePrefix = "nonce:"

// AuthConfig holds the parameters of the wallet login flow
type AuthConfig struct {
	AppName    string
	NonceTTL   time.Duration
	SessionTTL time.Duration
}

// VerifyResult is returned on a successful wallet login
type VerifyResult struct {
	Success bool
	Role    core.Role
	Token   string
}

// AuthService handles wallet authentication
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	users     ports.UserStore
	metrics   ports.Metrics
	log       logrus.FieldLogger
	cfg       AuthConfig
	now       func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	users ports.UserStore,
	metrics ports.Metrics,
	log logrus.FieldLogger,
	cfg AuthConfig,
) *AuthService {
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 5 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &AuthService{
		tokenizer: tokenizer,
		store:     store,
		users:     users,
		metrics:   metrics,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// IssueNonce creates the login challenge for wallet, replacing any
// challenge issued before
func (s *AuthService) IssueNonce(ctx context.Context, wallet string) (string, error) {
	if _, err := ParseWallet(wallet); err != nil {
		return "", err
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	challenge := fmt.Sprintf("Login to %s\n\nWallet: %s\nNonce: %s",
		s.cfg.AppName, wallet, hex.EncodeToString(nonceBytes))

	nonce := core.Nonce{
		WalletAddress: wallet,
		Challenge:     challenge,
		IssuedAt:      s.now(),
	}

	raw, err := json.Marshal(nonce)
	if err != nil {
		return "", fmt.Errorf("failed to encode nonce: %w", err)
	}

	if err := s.store.Set(ctx, noncePrefix+wallet, string(raw), s.cfg.NonceTTL); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}

	return nonce.Challenge, nil
}

// Verify checks the wallet's signature over its current challenge, consumes
// the challenge and issues a session token
func (s *AuthService) Verify(ctx context.Context, wallet, signature string) (res *VerifyResult, err error) {
	defer func() {
		s.metrics.AuthVerification(outcome(err))
	}()

	if wallet == "" || signature == "" {
		return nil, fmt.Errorf("publicKey and signature: %w", core.ErrMissingField)
	}

	pk, err := ParseWallet(wallet)
	if err != nil {
		return nil, err
	}

	raw, err := s.store.Get(ctx, noncePrefix+wallet)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrNonceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}

	var nonce core.Nonce
	if err := json.Unmarshal([]byte(raw), &nonce); err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	if nonce.WalletAddress != wallet {
		return nil, core.ErrNonceNotFound
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sigBytes) != len(solana.Signature{}) {
		return nil, core.ErrInvalidSignature
	}

	var sig solana.Signature
	copy(sig[:], sigBytes)
	if !sig.Verify(pk, []byte(nonce.Challenge)) {
		return nil, core.ErrInvalidSignature
	}

	// Only the challenge that was verified may be consumed. A replay or a
	// challenge re-issued in the meantime loses here.
	consumed, err := s.store.CompareAndDelete(ctx, noncePrefix+wallet, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !consumed {
		return nil, core.ErrNonceNotFound
	}

	user, err := s.users.FindOrCreate(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	token, err := s.tokenizer.SessionToToken(&core.SessionClaims{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		Role:          user.Role,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.cfg.SessionTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"wallet":    wallet,
		"user_id":   user.ID,
		"role":      user.Role,
		"nonce_age": now.Sub(nonce.IssuedAt).String(),
	}).Info("wallet logged in")

	return &VerifyResult{Success: true, Role: user.Role, Token: token}, nil
}

// Authenticate validates a session token and returns its claims
func (s *AuthService) Authenticate(ctx context.Context, token string) (*core.SessionClaims, error) {
	if token == "" {
		return nil, core.ErrUnauthorized
	}

	claims, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, err
	}

	if !claims.ExpiresAt.After(s.now()) {
		return nil, core.ErrUnauthorized
	}

	return claims, nil
}

// RequireAdmin fails with core.ErrForbidden unless claims carry the admin role
func (s *AuthService) RequireAdmin(claims *core.SessionClaims) error {
	if claims == nil || claims.Role != core.RoleAdmin {
		return core.ErrForbidden
	}

	return nil
}

// outcome names the result of an operation for metrics
func outcome(err error) string {
	if err == nil {
		return "ok"
	}

	var e *core.Error
	if errors.As(err, &e) {
		return e.Reason
	}

	return "error"
}
