package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/layer-3/gamebridge/ports"
	"github.com/sirupsen/logrus"
)

// instruction index of CreateIdempotent in the associated token account program
const ataCreateIdempotent = 1

// BuildResult is the partially built transaction handed to the user for signing
type BuildResult struct {
	UnsignedTransaction  string // base64 wire transaction with empty signature slots
	Blockhash            string
	LastValidBlockHeight uint64
}

// TransactionBuilder assembles treasury to user token transfers paid for by the user
type TransactionBuilder struct {
	chain    ports.Chain
	mint     solana.PublicKey
	decimals uint8
	treasury solana.PublicKey
	log      logrus.FieldLogger
}

// NewTransactionBuilder creates a builder for transfers of mint out of treasury's account
func NewTransactionBuilder(chain ports.Chain, mint, treasury solana.PublicKey, decimals uint8, log logrus.FieldLogger) *TransactionBuilder {
	return &TransactionBuilder{
		chain:    chain,
		mint:     mint,
		decimals: decimals,
		treasury: treasury,
		log:      log,
	}
}

// Build returns an unsigned transaction moving amount from the treasury to
// wallet's token account, creating the account when missing. The user is the
// fee payer and signs first; the treasury signature is added at finalize.
func (b *TransactionBuilder) Build(ctx context.Context, wallet, amount string) (*BuildResult, error) {
	user, err := ParseWallet(wallet)
	if err != nil {
		return nil, err
	}

	_, units, err := ParseAmount(amount, b.decimals)
	if err != nil {
		return nil, err
	}

	bh, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blockhash: %w", err)
	}

	hash, err := solana.HashFromBase58(bh.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid blockhash %q: %w", bh.Hash, err)
	}

	tx, err := b.compile(user, units, hash)
	if err != nil {
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	b.log.WithFields(logrus.Fields{
		"wallet":     wallet,
		"base_units": units,
		"blockhash":  bh.Hash,
	}).Debug("built transfer")

	return &BuildResult{
		UnsignedTransaction:  base64.StdEncoding.EncodeToString(raw),
		Blockhash:            bh.Hash,
		LastValidBlockHeight: bh.LastValidBlockHeight,
	}, nil
}

// compile produces the transfer for (user, units, blockhash). The result
// only depends on its inputs so finalize can rebuild and compare it.
func (b *TransactionBuilder) compile(user solana.PublicKey, units uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	userATA, _, err := solana.FindAssociatedTokenAddress(user, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive user token account: %w", err)
	}

	treasuryATA, _, err := solana.FindAssociatedTokenAddress(b.treasury, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive treasury token account: %w", err)
	}

	createATA := solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(user, true, true),
			solana.NewAccountMeta(userATA, true, false),
			solana.NewAccountMeta(user, false, false),
			solana.NewAccountMeta(b.mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		[]byte{ataCreateIdempotent},
	)

	transfer, err := token.NewTransferCheckedInstruction(
		units,
		b.decimals,
		treasuryATA,
		b.mint,
		userATA,
		b.treasury,
		[]solana.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{createATA, transfer},
		blockhash,
		solana.TransactionPayer(user),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction: %w", err)
	}

	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	return tx, nil
}
