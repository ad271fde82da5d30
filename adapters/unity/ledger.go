package unity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/layer-3/gamebridge/core"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds every call to the provider
	DefaultTimeout = 10 * time.Second

	DefaultRecordKey    = "CryptoData"
	DefaultWalletField  = "WalletAddress"
	DefaultBalanceField = "BabyBoohCoin"

	itemsPath = "/v1/data/projects/{projectId}/players/{playerId}/items"
)

// TokenSource supplies the bearer token for provider calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// LedgerConfig locates the player record in the provider's storage
type LedgerConfig struct {
	CloudSaveURL string
	ProjectID    string
	RecordKey    string
	WalletField  string
	BalanceField string
	Timeout      time.Duration
}

// Ledger reads and writes player currency records in Unity Cloud Save
type Ledger struct {
	client *resty.Client
	tokens TokenSource
	cfg    LedgerConfig
	log    logrus.FieldLogger
}

type item struct {
	Key       string                     `json:"key"`
	Value     map[string]json.RawMessage `json:"value"`
	WriteLock string                     `json:"writeLock"`
}

type itemsResponse struct {
	Results []item `json:"results"`
}

type setItemRequest struct {
	Key       string                     `json:"key"`
	Value     map[string]json.RawMessage `json:"value"`
	WriteLock string                     `json:"writeLock,omitempty"`
}

type setItemResponse struct {
	WriteLock string `json:"writeLock"`
}

// NewLedger creates a ledger client that authenticates through tokens
func NewLedger(cfg LedgerConfig, tokens TokenSource, log logrus.FieldLogger) *Ledger {
	if cfg.RecordKey == "" {
		cfg.RecordKey = DefaultRecordKey
	}
	if cfg.WalletField == "" {
		cfg.WalletField = DefaultWalletField
	}
	if cfg.BalanceField == "" {
		cfg.BalanceField = DefaultBalanceField
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Ledger{
		client: resty.New().SetBaseURL(cfg.CloudSaveURL).SetTimeout(cfg.Timeout),
		tokens: tokens,
		cfg:    cfg,
		log:    log,
	}
}

// ReadPlayerLedger fetches the player's currency record
func (l *Ledger) ReadPlayerLedger(ctx context.Context, playerID string) (*core.LedgerRecord, error) {
	if playerID == "" {
		return nil, fmt.Errorf("player id: %w", core.ErrMissingField)
	}

	req, err := l.request(ctx, playerID)
	if err != nil {
		return nil, err
	}

	resp, err := req.SetQueryParam("keys", l.cfg.RecordKey).Get(itemsPath)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %v: %w", err, core.ErrUpstream)
	}
	if err := l.checkStatus(resp); err != nil {
		return nil, err
	}

	var out itemsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode ledger: %v: %w", err, core.ErrUpstream)
	}

	for _, it := range out.Results {
		if it.Key != l.cfg.RecordKey {
			continue
		}
		return l.record(playerID, it)
	}

	return nil, core.ErrPlayerNotFound
}

// Deduct writes newBalance into the record read as snapshot. The write is
// conditional on the snapshot's write lock, so a record that changed since
// the read fails with core.ErrLedgerConflict.
func (l *Ledger) Deduct(ctx context.Context, playerID string, newBalance decimal.Decimal, snapshot *core.LedgerRecord) (string, error) {
	if newBalance.IsNegative() {
		return "", core.ErrInsufficientBalance
	}
	if snapshot == nil {
		return "", fmt.Errorf("ledger snapshot: %w", core.ErrMissingField)
	}

	value := make(map[string]json.RawMessage, len(snapshot.Value)+1)
	for k, v := range snapshot.Value {
		value[k] = v
	}
	value[l.cfg.BalanceField] = json.RawMessage(newBalance.String())

	req, err := l.request(ctx, playerID)
	if err != nil {
		return "", err
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(setItemRequest{
			Key:       l.cfg.RecordKey,
			Value:     value,
			WriteLock: snapshot.VersionMarker,
		}).
		Post(itemsPath)
	if err != nil {
		return "", fmt.Errorf("write ledger: %v: %w", err, core.ErrUpstream)
	}
	if err := l.checkStatus(resp); err != nil {
		return "", err
	}

	var out setItemResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode ledger write: %v: %w", err, core.ErrUpstream)
	}

	return out.WriteLock, nil
}

func (l *Ledger) request(ctx context.Context, playerID string) (*resty.Request, error) {
	token, err := l.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	return l.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParams(map[string]string{
			"projectId": l.cfg.ProjectID,
			"playerId":  playerID,
		}), nil
}

func (l *Ledger) checkStatus(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case resp.IsSuccess():
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		// The token was revoked or expired early, next caller exchanges a fresh one
		l.tokens.Invalidate()
		return fmt.Errorf("ledger returned %d: %w", code, core.ErrUpstreamAuth)
	case code == http.StatusNotFound:
		return core.ErrPlayerNotFound
	case code == http.StatusConflict:
		return core.ErrLedgerConflict
	default:
		l.log.WithField("status", code).Warn("unexpected ledger response")
		return fmt.Errorf("ledger returned %d: %w", code, core.ErrUpstream)
	}
}

func (l *Ledger) record(playerID string, it item) (*core.LedgerRecord, error) {
	rec := &core.LedgerRecord{
		PlayerID:      playerID,
		Balance:       decimal.Zero,
		VersionMarker: it.WriteLock,
		Value:         it.Value,
	}
	if rec.Value == nil {
		rec.Value = map[string]json.RawMessage{}
	}

	if raw, ok := rec.Value[l.cfg.WalletField]; ok {
		if err := json.Unmarshal(raw, &rec.WalletAddress); err != nil {
			return nil, fmt.Errorf("wallet field: %v: %w", err, core.ErrUpstream)
		}
	}

	if raw, ok := rec.Value[l.cfg.BalanceField]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &rec.Balance); err != nil {
			return nil, fmt.Errorf("balance field: %v: %w", err, core.ErrUpstream)
		}
	}

	return rec, nil
}
