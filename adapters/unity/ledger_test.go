package unity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/layer-3/gamebridge/core"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	invalidated int
}

func (s *staticTokens) Token(context.Context) (string, error) { return "svc-token", nil }
func (s *staticTokens) Invalidate()                           { s.invalidated++ }

func newTestLedger(url string, tokens TokenSource) *Ledger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return NewLedger(LedgerConfig{CloudSaveURL: url, ProjectID: "proj"}, tokens, log)
}

func TestReadPlayerLedger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/data/projects/proj/players/player-1/items", r.URL.Path)
		assert.Equal(t, "CryptoData", r.URL.Query().Get("keys"))
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"key":"Settings","value":{"volume":3},"writeLock":"s1"},
			{"key":"CryptoData","value":{"WalletAddress":"Wal1et","BabyBoohCoin":12.5,"Level":7},"writeLock":"w1"}
		]}`))
	}))
	defer srv.Close()

	rec, err := newTestLedger(srv.URL, &staticTokens{}).ReadPlayerLedger(context.Background(), "player-1")
	require.NoError(t, err)

	assert.Equal(t, "player-1", rec.PlayerID)
	assert.Equal(t, "Wal1et", rec.WalletAddress)
	assert.True(t, decimal.RequireFromString("12.5").Equal(rec.Balance))
	assert.Equal(t, "w1", rec.VersionMarker)
	assert.JSONEq(t, `7`, string(rec.Value["Level"]))
}

func TestReadPlayerLedgerErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "missing player", status: http.StatusNotFound, want: core.ErrPlayerNotFound},
		{name: "missing record", status: http.StatusOK, body: `{"results":[]}`, want: core.ErrPlayerNotFound},
		{name: "provider down", status: http.StatusBadGateway, want: core.ErrUpstream},
		{name: "bad balance", status: http.StatusOK, body: `{"results":[{"key":"CryptoData","value":{"BabyBoohCoin":"lots"}}]}`, want: core.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestLedger(srv.URL, &staticTokens{}).ReadPlayerLedger(context.Background(), "p")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadPlayerLedgerInvalidatesRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	_, err := newTestLedger(srv.URL, tokens).ReadPlayerLedger(context.Background(), "p")

	assert.ErrorIs(t, err, core.ErrUpstreamAuth)
	assert.Equal(t, 1, tokens.invalidated)
}

func TestDeduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/data/projects/proj/players/player-1/items", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var req setItemRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "CryptoData", req.Key)
		assert.Equal(t, "w1", req.WriteLock)
		assert.Equal(t, "7.5", string(req.Value["BabyBoohCoin"]))
		assert.Equal(t, `"Wal1et"`, string(req.Value["WalletAddress"]))
		assert.Equal(t, "7", string(req.Value["Level"]))

		_, _ = w.Write([]byte(`{"writeLock":"w2"}`))
	}))
	defer srv.Close()

	snapshot := &core.LedgerRecord{
		PlayerID:      "player-1",
		WalletAddress: "Wal1et",
		Balance:       decimal.RequireFromString("12.5"),
		VersionMarker: "w1",
		Value: map[string]json.RawMessage{
			"WalletAddress": json.RawMessage(`"Wal1et"`),
			"BabyBoohCoin":  json.RawMessage(`12.5`),
			"Level":         json.RawMessage(`7`),
		},
	}

	lock, err := newTestLedger(srv.URL, &staticTokens{}).
		Deduct(context.Background(), "player-1", decimal.RequireFromString("7.5"), snapshot)
	require.NoError(t, err)
	assert.Equal(t, "w2", lock)

	// Snapshot is left untouched
	assert.Equal(t, "12.5", string(snapshot.Value["BabyBoohCoin"]))
}

func TestDeductConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	snapshot := &core.LedgerRecord{VersionMarker: "stale", Value: map[string]json.RawMessage{}}
	_, err := newTestLedger(srv.URL, &staticTokens{}).
		Deduct(context.Background(), "p", decimal.NewFromInt(1), snapshot)

	assert.ErrorIs(t, err, core.ErrLedgerConflict)
}

func TestDeductRejectsNegativeBalance(t *testing.T) {
	l := newTestLedger("http://unused", &staticTokens{})
	_, err := l.Deduct(context.Background(), "p", decimal.NewFromInt(-1), &core.LedgerRecord{})

	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
}
