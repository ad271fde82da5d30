package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/service"
)

// Authenticator is the wallet login flow
type Authenticator interface {
	IssueNonce(ctx context.Context, wallet string) (string, error)
	Verify(ctx context.Context, wallet, signature string) (*service.VerifyResult, error)
	Authenticate(ctx context.Context, token string) (*core.SessionClaims, error)
	RequireAdmin(claims *core.SessionClaims) error
}

// Bridge is the conversion flow and its operator tools
type Bridge interface {
	RequestBuild(ctx context.Context, wallet, amount string) (*service.BuildResult, error)
	SubmitSigned(ctx context.Context, req service.FinalizeRequest) (*service.FinalizeResult, error)
	ListConversions(ctx context.Context, states ...core.ConversionState) ([]*core.Conversion, error)
	Reconcile(ctx context.Context, id string) (*core.Conversion, error)
	PlayerBalance(ctx context.Context, playerID string) (*core.LedgerRecord, error)
}

// Amount accepts a JSON number or a decimal string and keeps its exact text
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())

	return nil
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	auth Authenticator
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(auth Authenticator) *AuthHandlers {
	return &AuthHandlers{auth: auth}
}

// Nonce issues a login challenge for a wallet
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, core.ErrMissingField)
		return
	}

	message, err := h.auth.IssueNonce(c.Request.Context(), req.PublicKey)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Verify exchanges a signed challenge for a session token
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, core.ErrMissingField)
		return
	}

	res, err := h.auth.Verify(c.Request.Context(), req.PublicKey, req.Signature)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": res.Success,
		"role":    res.Role,
		"token":   res.Token,
	})
}

// Me returns the authenticated session
func (h *AuthHandlers) Me(c *gin.Context) {
	claims := sessionFrom(c)
	if claims == nil {
		abortWithError(c, core.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":        claims.UserID,
		"walletAddress": claims.WalletAddress,
		"role":          claims.Role,
		"expiresAt":     claims.ExpiresAt,
	})
}

// BridgeHandlers contains HTTP handlers for the conversion flow
type BridgeHandlers struct {
	bridge Bridge
}

// NewBridgeHandlers creates new bridge handlers
func NewBridgeHandlers(bridge Bridge) *BridgeHandlers {
	return &BridgeHandlers{bridge: bridge}
}

// Build returns an unsigned transfer for the session's wallet
func (h *BridgeHandlers) Build(c *gin.Context) {
	var req struct {
		WalletPubkey string `json:"walletPubkey" binding:"required"`
		Amount       Amount `json:"amount" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, core.ErrMissingField)
		return
	}

	if err := ownsWallet(c, req.WalletPubkey); err != nil {
		abortWithError(c, err)
		return
	}

	res, err := h.bridge.RequestBuild(c.Request.Context(), req.WalletPubkey, string(req.Amount))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"base64Tx":             res.UnsignedTransaction,
		"blockhash":            res.Blockhash,
		"lastValidBlockHeight": res.LastValidBlockHeight,
	})
}

// Finalize co-signs and submits a user signed transfer
func (h *BridgeHandlers) Finalize(c *gin.Context) {
	var req struct {
		WalletPubkey         string `json:"walletPubkey" binding:"required"`
		Amount               Amount `json:"amount" binding:"required"`
		Base64UserSignedTx   string `json:"base64UserSignedTx" binding:"required"`
		Blockhash            string `json:"blockhash" binding:"required"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight" binding:"required"`
		PlayerID             string `json:"playerId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, core.ErrMissingField)
		return
	}

	if err := ownsWallet(c, req.WalletPubkey); err != nil {
		abortWithError(c, err)
		return
	}

	res, err := h.bridge.SubmitSigned(c.Request.Context(), service.FinalizeRequest{
		WalletAddress:         req.WalletPubkey,
		Amount:                string(req.Amount),
		UserSignedTransaction: req.Base64UserSignedTx,
		Blockhash:             req.Blockhash,
		LastValidBlockHeight:  req.LastValidBlockHeight,
		PlayerID:              req.PlayerID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    res.Success,
		"signature":  res.Signature,
		"newBalance": res.NewBalance,
	})
}

// ListConversions lists conversions, optionally filtered by ?state=
func (h *BridgeHandlers) ListConversions(c *gin.Context) {
	var states []core.ConversionState
	for _, param := range c.QueryArray("state") {
		for _, name := range strings.Split(param, ",") {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}

			state, err := core.ParseConversionState(name)
			if err != nil {
				abortWithError(c, err)
				return
			}
			states = append(states, state)
		}
	}

	list, err := h.bridge.ListConversions(c.Request.Context(), states...)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversions": list})
}

// Reconcile settles one conversion from the chain's view of it
func (h *BridgeHandlers) Reconcile(c *gin.Context) {
	conv, err := h.bridge.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversion": conv})
}

// PlayerBalance reports a player's ledger record to game services
func (h *BridgeHandlers) PlayerBalance(c *gin.Context) {
	playerID := c.Param("playerId")
	if playerID == "" {
		// Legacy body form
		var req struct {
			PlayerID string `json:"playerId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, core.ErrMissingField)
			return
		}
		playerID = req.PlayerID
	}

	rec, err := h.bridge.PlayerBalance(c.Request.Context(), playerID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId":      rec.PlayerID,
		"walletAddress": rec.WalletAddress,
		"balance":       rec.Balance,
	})
}

// ownsWallet checks that the session was issued to wallet
func ownsWallet(c *gin.Context, wallet string) error {
	claims := sessionFrom(c)
	if claims == nil {
		return core.ErrUnauthorized
	}
	if claims.WalletAddress != wallet {
		return core.ErrWrongWallet
	}

	return nil
}
