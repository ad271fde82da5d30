package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultPollInterval   = time.Second
	defaultDeductAttempts = 3

	// consecutive RPC failures tolerated while waiting for confirmation
	maxConfirmErrors = 30
)

// FinalizeRequest carries everything the client sends back after signing
type FinalizeRequest struct {
	WalletAddress         string
	Amount                string
	UserSignedTransaction string // base64 wire transaction
	Blockhash             string
	LastValidBlockHeight  uint64
	PlayerID              string
}

// FinalizeResult is returned once the transfer is confirmed
type FinalizeResult struct {
	Success    bool
	Signature  string
	NewBalance string
}

// FinalizerConfig tunes confirmation polling and conflict retries
type FinalizerConfig struct {
	PollInterval   time.Duration
	DeductAttempts int
}

// TransactionFinalizer co-signs user signed transfers, submits them and
// deducts the matching off-chain balance
type TransactionFinalizer struct {
	builder     *TransactionBuilder
	treasury    solana.PrivateKey
	chain       ports.Chain
	ledger      ports.Ledger
	conversions ports.ConversionStore
	events      ports.EventPublisher
	metrics     ports.Metrics
	log         logrus.FieldLogger
	cfg         FinalizerConfig
	now         func() time.Time
}

// NewTransactionFinalizer creates a finalizer signing with treasury.
// The builder must have been created for the same treasury.
func NewTransactionFinalizer(
	builder *TransactionBuilder,
	treasury solana.PrivateKey,
	chain ports.Chain,
	ledger ports.Ledger,
	conversions ports.ConversionStore,
	events ports.EventPublisher,
	metrics ports.Metrics,
	log logrus.FieldLogger,
	cfg FinalizerConfig,
) *TransactionFinalizer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DeductAttempts <= 0 {
		cfg.DeductAttempts = defaultDeductAttempts
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &TransactionFinalizer{
		builder:     builder,
		treasury:    treasury,
		chain:       chain,
		ledger:      ledger,
		conversions: conversions,
		events:      events,
		metrics:     metrics,
		log:         log,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Finalize re-validates the conversion against the current ledger record,
// adds the treasury signature, submits, deducts and waits for confirmation.
func (f *TransactionFinalizer) Finalize(ctx context.Context, req FinalizeRequest) (res *FinalizeResult, err error) {
	defer func() {
		f.metrics.ConversionOutcome(outcome(err))
	}()

	log := f.log.WithFields(logrus.Fields{
		"player_id": req.PlayerID,
		"wallet":    req.WalletAddress,
		"amount":    req.Amount,
	})

	tx, amount, units, err := f.decode(req)
	if err != nil {
		return nil, err
	}

	// Never trust what the ledger said at build time
	rec, err := f.ledger.ReadPlayerLedger(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	if rec.WalletAddress != req.WalletAddress {
		log.WithField("ledger_wallet", rec.WalletAddress).Warn("wallet does not match ledger record")
		return nil, core.ErrAddressMismatch
	}

	if rec.Balance.LessThan(amount) {
		log.WithField("balance", rec.Balance.String()).Info("insufficient balance")
		return nil, core.ErrInsufficientBalance
	}

	height, err := f.chain.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block height: %w", err)
	}
	if height > req.LastValidBlockHeight {
		return nil, core.ErrBlockhashExpired
	}

	raw, signature, err := f.sign(tx)
	if err != nil {
		return nil, err
	}

	// Once the treasury has signed the attempt runs to completion even if
	// the caller goes away
	ctx = context.WithoutCancel(ctx)

	now := f.now()
	conv := &core.Conversion{
		ID:                   uuid.New().String(),
		Signature:            signature,
		PlayerID:             req.PlayerID,
		WalletAddress:        req.WalletAddress,
		Amount:               amount,
		BaseUnits:            units,
		Blockhash:            req.Blockhash,
		LastValidBlockHeight: req.LastValidBlockHeight,
		State:                core.StateTreasurySigned,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.conversions.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}
	f.publish(ctx, conv)

	log = log.WithFields(logrus.Fields{
		"conversion_id": conv.ID,
		"signature":     signature,
	})

	if _, err := f.chain.SendRawTransaction(ctx, raw); err != nil {
		log.WithError(err).Error("submit failed")
		f.transition(ctx, conv, core.StateSubmitFailed, err)
		return nil, fmt.Errorf("%w: %v", core.ErrSubmit, err)
	}
	f.transition(ctx, conv, core.StateSubmitted, nil)
	log.Info("transfer submitted")

	newBalance, marker, err := f.deduct(ctx, conv, rec, f.cfg.DeductAttempts)
	if err != nil {
		log.WithError(err).Error("deduction failed after submit")
		if !errors.Is(err, core.ErrConversionConflict) {
			f.transition(ctx, conv, core.StateDeductFailed, err)
		}
		return nil, err
	}
	conv.NewBalance = newBalance.String()
	conv.VersionMarker = marker
	f.transition(ctx, conv, core.StateDeducted, nil)

	if err := f.confirm(ctx, signature, req.LastValidBlockHeight); err != nil {
		state := core.StateConfirmTimeout
		if errors.Is(err, core.ErrSubmit) {
			// Failed on chain after the balance was taken
			state = core.StateRefundRequired
		}
		log.WithError(err).Error("transfer not confirmed")
		f.transition(ctx, conv, state, err)
		return nil, err
	}
	f.transition(ctx, conv, core.StateConfirmed, nil)
	log.WithField("new_balance", conv.NewBalance).Info("conversion confirmed")

	return &FinalizeResult{
		Success:    true,
		Signature:  signature,
		NewBalance: conv.NewBalance,
	}, nil
}

// decode validates the request without side effects and returns the user
// signed transaction. The transaction must be exactly the one the builder
// produces for the requested wallet, amount and blockhash.
func (f *TransactionFinalizer) decode(req FinalizeRequest) (*solana.Transaction, decimal.Decimal, uint64, error) {
	if req.PlayerID == "" {
		return nil, decimal.Zero, 0, fmt.Errorf("playerId: %w", core.ErrMissingField)
	}

	user, err := ParseWallet(req.WalletAddress)
	if err != nil {
		return nil, decimal.Zero, 0, err
	}

	amount, units, err := ParseAmount(req.Amount, f.builder.decimals)
	if err != nil {
		return nil, decimal.Zero, 0, err
	}

	hash, err := solana.HashFromBase58(req.Blockhash)
	if err != nil {
		return nil, decimal.Zero, 0, fmt.Errorf("blockhash: %w", core.ErrInvalidTransaction)
	}

	raw, err := base64.StdEncoding.DecodeString(req.UserSignedTransaction)
	if err != nil {
		return nil, decimal.Zero, 0, fmt.Errorf("base64: %w", core.ErrInvalidTransaction)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, decimal.Zero, 0, fmt.Errorf("%v: %w", err, core.ErrInvalidTransaction)
	}

	expected, err := f.builder.compile(user, units, hash)
	if err != nil {
		return nil, decimal.Zero, 0, err
	}

	got, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, decimal.Zero, 0, fmt.Errorf("%v: %w", err, core.ErrInvalidTransaction)
	}
	want, err := expected.Message.MarshalBinary()
	if err != nil {
		return nil, decimal.Zero, 0, fmt.Errorf("failed to serialize expected message: %w", err)
	}
	if !bytes.Equal(got, want) {
		return nil, decimal.Zero, 0, core.ErrTransactionMismatch
	}

	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, decimal.Zero, 0, fmt.Errorf("signature count: %w", core.ErrInvalidTransaction)
	}

	// Fee payer comes first
	if !tx.Signatures[0].Verify(user, got) {
		return nil, decimal.Zero, 0, core.ErrInvalidSignature
	}

	return tx, amount, units, nil
}

// sign adds the treasury signature and returns the wire transaction and
// its id, the fee payer's signature
func (f *TransactionFinalizer) sign(tx *solana.Transaction) ([]byte, string, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize message: %w", err)
	}

	treasury := f.treasury.PublicKey()
	signers := int(tx.Message.Header.NumRequiredSignatures)

	idx := -1
	for i, key := range tx.Message.AccountKeys[:signers] {
		if key.Equals(treasury) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, "", core.ErrTransactionMismatch
	}

	sig, err := f.treasury.Sign(msg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign: %w", err)
	}
	tx.Signatures[idx] = sig

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return raw, tx.Signatures[0].String(), nil
}

// deduct writes balance - amount against rec. Before each write the
// conversion is moved to DEDUCTING with rec's write lock as its base, so a
// write whose outcome is lost can be told apart later. On a ledger conflict
// the record is re-read and the write retried, up to attempts in total.
func (f *TransactionFinalizer) deduct(ctx context.Context, conv *core.Conversion, rec *core.LedgerRecord, attempts int) (decimal.Decimal, string, error) {
	for attempt := 1; ; attempt++ {
		if rec.WalletAddress != conv.WalletAddress {
			return decimal.Zero, "", core.ErrAddressMismatch
		}

		newBalance := rec.Balance.Sub(conv.Amount)
		if newBalance.IsNegative() {
			return decimal.Zero, "", core.ErrInsufficientBalance
		}

		conv.DeductBase = rec.VersionMarker
		if err := f.settle(ctx, conv, core.StateDeducting, nil); err != nil {
			return decimal.Zero, "", fmt.Errorf("failed to claim deduction: %w", err)
		}

		marker, err := f.ledger.Deduct(ctx, conv.PlayerID, newBalance, rec)
		if err == nil {
			return newBalance, marker, nil
		}
		if !errors.Is(err, core.ErrLedgerConflict) || attempt >= attempts {
			return decimal.Zero, "", err
		}

		f.log.WithFields(logrus.Fields{
			"player_id": conv.PlayerID,
			"attempt":   attempt,
		}).Warn("ledger record changed, retrying deduction")

		rec, err = f.ledger.ReadPlayerLedger(ctx, conv.PlayerID)
		if err != nil {
			return decimal.Zero, "", err
		}
	}
}

// confirm polls until the signature is confirmed, fails on chain or the
// blockhash window closes
func (f *TransactionFinalizer) confirm(ctx context.Context, signature string, lastValid uint64) error {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		status, err := f.chain.SignatureStatus(ctx, signature)
		switch {
		case err != nil:
			failures++
			f.log.WithError(err).WithField("signature", signature).Warn("signature status lookup failed")
		case status.Err != "":
			return fmt.Errorf("%w: failed on chain: %s", core.ErrSubmit, status.Err)
		case status.Confirmed:
			return nil
		}

		height, err := f.chain.BlockHeight(ctx)
		if err != nil {
			failures++
		} else if height > lastValid {
			return core.ErrConfirmTimeout
		}

		if failures >= maxConfirmErrors {
			return fmt.Errorf("%w: chain unreachable", core.ErrConfirmTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// transition moves conv to state and records it. Bookkeeping failures are
// logged, the conversion itself carries on.
func (f *TransactionFinalizer) transition(ctx context.Context, conv *core.Conversion, state core.ConversionState, cause error) {
	if err := f.settle(ctx, conv, state, cause); err != nil {
		f.log.WithError(err).WithFields(logrus.Fields{
			"conversion_id": conv.ID,
			"state":         state,
		}).Error("failed to record conversion state")
	}
}

// settle moves conv to state and records it, failing when the stored record
// moved on since conv was read
func (f *TransactionFinalizer) settle(ctx context.Context, conv *core.Conversion, state core.ConversionState, cause error) error {
	conv.State = state
	conv.UpdatedAt = f.now()
	if cause != nil {
		conv.Error = cause.Error()
	}

	if err := f.conversions.Update(ctx, conv); err != nil {
		return err
	}

	f.publish(ctx, conv)

	return nil
}

func (f *TransactionFinalizer) publish(ctx context.Context, conv *core.Conversion) {
	if f.events == nil {
		return
	}

	if err := f.events.PublishConversion(ctx, conv); err != nil {
		f.log.WithError(err).WithField("conversion_id", conv.ID).Warn("failed to publish conversion event")
	}
}
