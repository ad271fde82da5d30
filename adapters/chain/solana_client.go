package chain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
)

// SolanaClient implements ports.Chain over a Solana JSON-RPC node
type SolanaClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewSolanaClient creates a client for the node at endpoint.
// Reads use the confirmed commitment level.
func NewSolanaClient(endpoint string) *SolanaClient {
	return &SolanaClient{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
}

var _ ports.Chain = (*SolanaClient)(nil)

// LatestBlockhash returns a fresh blockhash and its validity window
func (c *SolanaClient) LatestBlockhash(ctx context.Context) (core.Blockhash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return core.Blockhash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return core.Blockhash{}, fmt.Errorf("get latest blockhash: empty response")
	}

	return core.Blockhash{
		Hash:                 out.Value.Blockhash.String(),
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// BlockHeight returns the current block height
func (c *SolanaClient) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", err)
	}

	return height, nil
}

// SendRawTransaction submits a fully signed wire transaction and returns its signature
func (c *SolanaClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	return sig.String(), nil
}

// SignatureStatus looks the signature up, including transaction history
func (c *SolanaClient) SignatureStatus(ctx context.Context, signature string) (core.SignatureStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return core.SignatureStatus{}, fmt.Errorf("parse signature: %w", err)
	}

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return core.SignatureStatus{}, fmt.Errorf("get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return core.SignatureStatus{}, nil
	}

	status := out.Value[0]
	res := core.SignatureStatus{Found: true}
	if status.Err != nil {
		res.Err = fmt.Sprint(status.Err)
		return res, nil
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		res.Confirmed = true
	}

	return res, nil
}
