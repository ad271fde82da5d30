package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerRecord is a player's off-chain currency record as held by the provider
type LedgerRecord struct {
	PlayerID      string
	WalletAddress string
	Balance       decimal.Decimal
	VersionMarker string                     // provider write lock at read time
	Value         map[string]json.RawMessage // full record value as read
}

// Blockhash is a recent blockhash with the last block height it stays valid for
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}

// SignatureStatus is the network's view of a submitted transaction
type SignatureStatus struct {
	Found     bool
	Confirmed bool
	Err       string // non-empty when the transaction failed on chain
}

// ConversionState is the durable lifecycle state of a conversion
type ConversionState string

const (
	StateTreasurySigned ConversionState = "TREASURY_SIGNED"
	StateSubmitted      ConversionState = "SUBMITTED"
	StateDeducting      ConversionState = "DEDUCTING" // write sent against DeductBase, outcome unknown
	StateDeducted       ConversionState = "DEDUCTED"
	StateConfirmed      ConversionState = "CONFIRMED"

	StateSubmitFailed   ConversionState = "SUBMIT_FAILED"
	StateDeductFailed   ConversionState = "DEDUCT_FAILED"
	StateConfirmTimeout ConversionState = "CONFIRM_TIMEOUT"

	// Resolution outcomes, the last two need an operator
	StateFailed         ConversionState = "FAILED"
	StateRefundRequired ConversionState = "REFUND_REQUIRED"
	StateReviewRequired ConversionState = "REVIEW_REQUIRED"
)

var conversionStates = []ConversionState{
	StateTreasurySigned, StateSubmitted, StateDeducting, StateDeducted, StateConfirmed,
	StateSubmitFailed, StateDeductFailed, StateConfirmTimeout,
	StateFailed, StateRefundRequired, StateReviewRequired,
}

// ParseConversionState accepts a state name in any case
func ParseConversionState(s string) (ConversionState, error) {
	for _, state := range conversionStates {
		if strings.EqualFold(s, string(state)) {
			return state, nil
		}
	}

	return "", fmt.Errorf("%q: %w", s, ErrInvalidState)
}

// Deducted reports whether the off-chain balance was already reduced in this state.
func (s ConversionState) Deducted() bool {
	switch s {
	case StateDeducted, StateConfirmed, StateConfirmTimeout, StateRefundRequired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is expected.
func (s ConversionState) Terminal() bool {
	switch s {
	case StateConfirmed, StateFailed, StateRefundRequired, StateReviewRequired:
		return true
	default:
		return false
	}
}

// UnsettledStates are the states reconciliation looks at
var UnsettledStates = []ConversionState{
	StateTreasurySigned,
	StateSubmitted,
	StateDeducting,
	StateDeducted,
	StateSubmitFailed,
	StateDeductFailed,
	StateConfirmTimeout,
}

// Conversion is the durable intent record of one finalize attempt.
// It is keyed by the transaction signature so that a crash between
// submission and deduction can be found and reconciled.
//
// DeductBase is the ledger write lock a deduction was last sent against.
// While the ledger still carries it, that deduction did not apply.
// Revision guards every update, a stale copy cannot overwrite a newer one.
type Conversion struct {
	ID                   string          `json:"id"`
	Signature            string          `json:"signature"`
	PlayerID             string          `json:"playerId"`
	WalletAddress        string          `json:"walletAddress"`
	Amount               decimal.Decimal `json:"amount"`
	BaseUnits            uint64          `json:"baseUnits"`
	Blockhash            string          `json:"blockhash"`
	LastValidBlockHeight uint64          `json:"lastValidBlockHeight"`
	State                ConversionState `json:"state"`
	NewBalance           string          `json:"newBalance,omitempty"`
	VersionMarker        string          `json:"versionMarker,omitempty"`
	DeductBase           string          `json:"deductBase,omitempty"`
	Error                string          `json:"error,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	Revision             int64           `json:"revision"`
}
