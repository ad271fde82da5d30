package service

import (
	"context"

	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
	"github.com/sirupsen/logrus"
)

// BridgeService is the entry point for conversions. It keeps no state
// between build and finalize, everything is derived from the request and
// a fresh ledger read. Every error it returns carries a core.Kind.
type BridgeService struct {
	builder     *TransactionBuilder
	finalizer   *TransactionFinalizer
	ledger      ports.Ledger
	conversions ports.ConversionStore
	log         logrus.FieldLogger
}

// NewBridgeService creates a new bridge service
func NewBridgeService(
	builder *TransactionBuilder,
	finalizer *TransactionFinalizer,
	ledger ports.Ledger,
	conversions ports.ConversionStore,
	log logrus.FieldLogger,
) *BridgeService {
	return &BridgeService{
		builder:     builder,
		finalizer:   finalizer,
		ledger:      ledger,
		conversions: conversions,
		log:         log,
	}
}

// RequestBuild returns an unsigned transfer of amount to wallet
func (s *BridgeService) RequestBuild(ctx context.Context, wallet, amount string) (*BuildResult, error) {
	res, err := s.builder.Build(ctx, wallet, amount)
	if err != nil {
		return nil, s.fail("build", err)
	}

	return res, nil
}

// SubmitSigned finalizes a user signed transfer
func (s *BridgeService) SubmitSigned(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	res, err := s.finalizer.Finalize(ctx, req)
	if err != nil {
		return nil, s.fail("finalize", err)
	}

	return res, nil
}

// ListConversions returns conversions in any of states, the unsettled ones by default
func (s *BridgeService) ListConversions(ctx context.Context, states ...core.ConversionState) ([]*core.Conversion, error) {
	if len(states) == 0 {
		states = core.UnsettledStates
	}

	list, err := s.conversions.ListByState(ctx, states...)
	if err != nil {
		return nil, s.fail("list conversions", err)
	}

	return list, nil
}

// Reconcile settles one conversion from the chain's view of it
func (s *BridgeService) Reconcile(ctx context.Context, id string) (*core.Conversion, error) {
	conv, err := s.finalizer.Reconcile(ctx, id)
	if err != nil {
		return nil, s.fail("reconcile", err)
	}

	return conv, nil
}

// PlayerBalance reads the player's ledger record
func (s *BridgeService) PlayerBalance(ctx context.Context, playerID string) (*core.LedgerRecord, error) {
	rec, err := s.ledger.ReadPlayerLedger(ctx, playerID)
	if err != nil {
		return nil, s.fail("player balance", err)
	}

	return rec, nil
}

func (s *BridgeService) fail(op string, err error) error {
	err = core.Classify(err)
	if core.KindOf(err) == core.KindUpstream {
		s.log.WithError(err).WithField("op", op).Error("upstream failure")
	}

	return err
}
