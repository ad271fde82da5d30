package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/gamebridge/adapters/store"
	"github.com/layer-3/gamebridge/adapters/tokenizer"
	"github.com/layer-3/gamebridge/adapters/users"
	"github.com/layer-3/gamebridge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T, admins ...string) *AuthService {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return NewAuthService(
		tokenizer.NewJWTTokenizer(key),
		store.NewMemoryStore(),
		users.NewMemoryStore(admins...),
		nil,
		testLogger(),
		AuthConfig{AppName: "Booh Marketplace"},
	)
}

func TestIssueNonceStoresChallengeRecord(t *testing.T) {
	auth := newTestAuth(t)
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issuedAt }
	wallet := solana.NewWallet().PublicKey().String()

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)

	raw, err := auth.store.Get(context.Background(), noncePrefix+wallet)
	require.NoError(t, err)

	var nonce core.Nonce
	require.NoError(t, json.Unmarshal([]byte(raw), &nonce))
	assert.Equal(t, wallet, nonce.WalletAddress)
	assert.Equal(t, msg, nonce.Challenge)
	assert.True(t, issuedAt.Equal(nonce.IssuedAt))
}

func signChallenge(t *testing.T, key solana.PrivateKey, challenge string) string {
	t.Helper()

	sig, err := key.Sign([]byte(challenge))
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(sig[:])
}

func TestIssueNonce(t *testing.T) {
	auth := newTestAuth(t)
	wallet := solana.NewWallet().PublicKey().String()

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(msg, "Login to Booh Marketplace\n\nWallet: "+wallet+"\nNonce: "))

	again, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)
	assert.NotEqual(t, msg, again)

	_, err = auth.IssueNonce(context.Background(), "not-a-wallet")
	assert.ErrorIs(t, err, core.ErrInvalidWallet)
}

func TestVerify(t *testing.T) {
	auth := newTestAuth(t)
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)

	res, err := auth.Verify(context.Background(), wallet, signChallenge(t, key, msg))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, core.RoleMember, res.Role)

	claims, err := auth.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, wallet, claims.WalletAddress)
	assert.Equal(t, core.RoleMember, claims.Role)
	assert.NotEmpty(t, claims.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)

	assert.ErrorIs(t, auth.RequireAdmin(claims), core.ErrForbidden)
}

func TestVerifyIsSingleUse(t *testing.T) {
	auth := newTestAuth(t)
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)
	sig := signChallenge(t, key, msg)

	_, err = auth.Verify(context.Background(), wallet, sig)
	require.NoError(t, err)

	_, err = auth.Verify(context.Background(), wallet, sig)
	assert.ErrorIs(t, err, core.ErrNonceNotFound)
}

func TestVerifyRejectsStaleNonce(t *testing.T) {
	auth := newTestAuth(t)
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()

	stale, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)
	fresh, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)

	_, err = auth.Verify(context.Background(), wallet, signChallenge(t, key, stale))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, err = auth.Verify(context.Background(), wallet, signChallenge(t, key, fresh))
	assert.NoError(t, err)
}

func TestVerifyFailures(t *testing.T) {
	auth := newTestAuth(t)
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()

	// No nonce issued yet
	_, err := auth.Verify(context.Background(), wallet, signChallenge(t, key, "anything"))
	assert.ErrorIs(t, err, core.ErrNonceNotFound)

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)

	other := solana.NewWallet().PrivateKey
	_, err = auth.Verify(context.Background(), wallet, signChallenge(t, other, msg))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, err = auth.Verify(context.Background(), wallet, "%%%")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, err = auth.Verify(context.Background(), wallet, base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, err = auth.Verify(context.Background(), wallet, "")
	assert.ErrorIs(t, err, core.ErrMissingField)

	// Failed attempts leave the nonce in place
	_, err = auth.Verify(context.Background(), wallet, signChallenge(t, key, msg))
	assert.NoError(t, err)
}

func TestVerifyConcurrentReplay(t *testing.T) {
	auth := newTestAuth(t)
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)
	sig := signChallenge(t, key, msg)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := auth.Verify(context.Background(), wallet, sig); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestVerifyAdmin(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()
	auth := newTestAuth(t, wallet)

	msg, err := auth.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)

	res, err := auth.Verify(context.Background(), wallet, signChallenge(t, key, msg))
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, res.Role)

	claims, err := auth.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.NoError(t, auth.RequireAdmin(claims))
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	auth := newTestAuth(t)

	_, err := auth.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = auth.Authenticate(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	// Token signed by another instance's key
	other := newTestAuth(t)
	key := solana.NewWallet().PrivateKey
	wallet := key.PublicKey().String()
	msg, err := other.IssueNonce(context.Background(), wallet)
	require.NoError(t, err)
	res, err := other.Verify(context.Background(), wallet, signChallenge(t, key, msg))
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), res.Token)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}
