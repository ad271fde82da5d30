package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/gamebridge/core"
	"github.com/sirupsen/logrus"
)

// Reconcile settles an unsettled conversion from the chain's view of its
// transaction. Only unambiguous cases are resolved, anything still pending
// is returned unchanged. Balances are never credited back automatically,
// a deducted conversion whose transfer failed ends in REFUND_REQUIRED.
func (f *TransactionFinalizer) Reconcile(ctx context.Context, id string) (*core.Conversion, error) {
	conv, err := f.conversions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if conv.State.Terminal() {
		return conv, nil
	}

	status, err := f.chain.SignatureStatus(ctx, conv.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signature status: %w", err)
	}

	height, err := f.chain.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block height: %w", err)
	}

	log := f.log.WithFields(logrus.Fields{
		"conversion_id": conv.ID,
		"signature":     conv.Signature,
		"state":         conv.State,
	})

	landed := status.Found && status.Err == "" && status.Confirmed
	dead := status.Err != "" || (!status.Found && height > conv.LastValidBlockHeight)

	if !landed && !dead {
		log.Info("conversion still pending")
		return conv, nil
	}

	switch {
	case conv.State.Deducted() && landed:
		err = f.settle(ctx, conv, core.StateConfirmed, nil)
	case conv.State.Deducted():
		err = f.settle(ctx, conv, core.StateRefundRequired, fmt.Errorf("transfer did not land: %s", failureReason(status, height)))
	default:
		err = f.settleUndeducted(ctx, conv, landed, failureReason(status, height))
	}
	if err != nil {
		log.WithError(err).Error("reconcile failed")
		return nil, err
	}

	log.WithField("resolved_state", conv.State).Info("conversion reconciled")

	return conv, nil
}

// settleUndeducted resolves a conversion whose deduction never completed.
// A write sent against DeductBase may still have reached the ledger, which
// shows as a moved write lock. Such a record is left to an operator, it is
// never deducted a second time.
func (f *TransactionFinalizer) settleUndeducted(ctx context.Context, conv *core.Conversion, landed bool, reason string) error {
	if !landed && conv.DeductBase == "" {
		return f.settle(ctx, conv, core.StateFailed, fmt.Errorf("transfer did not land: %s", reason))
	}

	rec, err := f.ledger.ReadPlayerLedger(ctx, conv.PlayerID)
	if err != nil {
		return err
	}

	if conv.DeductBase != "" && rec.VersionMarker != conv.DeductBase {
		return f.settle(ctx, conv, core.StateReviewRequired,
			fmt.Errorf("ledger record moved since the deduction against %s", conv.DeductBase))
	}

	if !landed {
		return f.settle(ctx, conv, core.StateFailed, fmt.Errorf("transfer did not land: %s", reason))
	}

	newBalance, marker, err := f.deduct(ctx, conv, rec, 1)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrConversionConflict):
		return err
	case errors.Is(err, core.ErrLedgerConflict),
		errors.Is(err, core.ErrAddressMismatch),
		errors.Is(err, core.ErrInsufficientBalance):
		return f.settle(ctx, conv, core.StateReviewRequired, err)
	default:
		f.transition(ctx, conv, core.StateDeductFailed, err)
		return err
	}

	conv.NewBalance = newBalance.String()
	conv.VersionMarker = marker

	return f.settle(ctx, conv, core.StateConfirmed, nil)
}

func failureReason(status core.SignatureStatus, height uint64) string {
	if status.Err != "" {
		return status.Err
	}

	return fmt.Sprintf("blockhash expired at height %d", height)
}
