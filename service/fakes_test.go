package service

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/gamebridge/adapters/conversions"
	"github.com/layer-3/gamebridge/core"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	mu sync.Mutex

	blockhash  core.Blockhash
	height     uint64
	heightStep uint64 // added after every BlockHeight call
	heightErr  error
	sendErr    error
	status     core.SignatureStatus
	sent       [][]byte
}

func (c *fakeChain) LatestBlockhash(context.Context) (core.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blockhash, nil
}

func (c *fakeChain) BlockHeight(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heightErr != nil {
		return 0, c.heightErr
	}

	h := c.height
	c.height += c.heightStep
	return h, nil
}

func (c *fakeChain) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return "", c.sendErr
	}

	c.sent = append(c.sent, raw)

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", err
	}
	return tx.Signatures[0].String(), nil
}

func (c *fakeChain) SignatureStatus(context.Context, string) (core.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status, nil
}

func (c *fakeChain) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sent)
}

type fakeLedger struct {
	mu sync.Mutex

	records map[string]*core.LedgerRecord

	// conflicts makes the next n deductions fail; onConflict runs before each
	conflicts  int
	onConflict func(rec *core.LedgerRecord)

	// lostReply makes the next deduction apply and then fail with it
	lostReply error

	deductions []decimal.Decimal
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*core.LedgerRecord)}
}

func (l *fakeLedger) set(playerID, wallet string, balance string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[playerID] = &core.LedgerRecord{
		PlayerID:      playerID,
		WalletAddress: wallet,
		Balance:       decimal.RequireFromString(balance),
		VersionMarker: "v0",
	}
}

func (l *fakeLedger) balance(playerID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.records[playerID].Balance
}

func (l *fakeLedger) deductionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.deductions)
}

func (l *fakeLedger) ReadPlayerLedger(_ context.Context, playerID string) (*core.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[playerID]
	if !ok {
		return nil, core.ErrPlayerNotFound
	}

	cp := *rec
	return &cp, nil
}

func (l *fakeLedger) Deduct(_ context.Context, playerID string, newBalance decimal.Decimal, snapshot *core.LedgerRecord) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.records[playerID]
	if l.conflicts > 0 {
		l.conflicts--
		if l.onConflict != nil {
			l.onConflict(rec)
		}
		return "", core.ErrLedgerConflict
	}
	if snapshot.VersionMarker != rec.VersionMarker {
		return "", core.ErrLedgerConflict
	}

	rec.Balance = newBalance
	rec.VersionMarker = rec.VersionMarker + "+"
	l.deductions = append(l.deductions, newBalance)

	if l.lostReply != nil {
		err := l.lostReply
		l.lostReply = nil
		return "", err
	}

	return rec.VersionMarker, nil
}

type bridgeFixture struct {
	user     solana.PrivateKey
	treasury solana.PrivateKey
	mint     solana.PublicKey

	chain       *fakeChain
	ledger      *fakeLedger
	conversions *conversions.MemoryStore
	builder     *TransactionBuilder
	finalizer   *TransactionFinalizer
	bridge      *BridgeService
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	f := &bridgeFixture{
		user:     solana.NewWallet().PrivateKey,
		treasury: solana.NewWallet().PrivateKey,
		mint:     solana.NewWallet().PublicKey(),
		chain: &fakeChain{
			blockhash: core.Blockhash{Hash: solana.Hash{7, 7, 7}.String(), LastValidBlockHeight: 200},
			height:    100,
			status:    core.SignatureStatus{Found: true, Confirmed: true},
		},
		ledger:      newFakeLedger(),
		conversions: conversions.NewMemoryStore(),
	}

	log := testLogger()
	f.builder = NewTransactionBuilder(f.chain, f.mint, f.treasury.PublicKey(), 9, log)
	f.finalizer = NewTransactionFinalizer(f.builder, f.treasury, f.chain, f.ledger, f.conversions,
		nil, nil, log, FinalizerConfig{PollInterval: time.Millisecond})
	f.bridge = NewBridgeService(f.builder, f.finalizer, f.ledger, f.conversions, log)

	return f
}

func (f *bridgeFixture) wallet() string {
	return f.user.PublicKey().String()
}

// signAsUser adds the fee payer signature to a built transaction
func (f *bridgeFixture) signAsUser(t *testing.T, unsigned string) string {
	t.Helper()

	raw, err := base64.StdEncoding.DecodeString(unsigned)
	require.NoError(t, err)

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)

	sig, err := f.user.Sign(msg)
	require.NoError(t, err)
	tx.Signatures[0] = sig

	out, err := tx.MarshalBinary()
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(out)
}

// buildAndSign runs the client half of the protocol
func (f *bridgeFixture) buildAndSign(t *testing.T, amount string) FinalizeRequest {
	t.Helper()

	built, err := f.bridge.RequestBuild(context.Background(), f.wallet(), amount)
	require.NoError(t, err)

	return FinalizeRequest{
		WalletAddress:         f.wallet(),
		Amount:                amount,
		UserSignedTransaction: f.signAsUser(t, built.UnsignedTransaction),
		Blockhash:             built.Blockhash,
		LastValidBlockHeight:  built.LastValidBlockHeight,
		PlayerID:              "player-1",
	}
}
