package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer answers each JSON-RPC method with a canned result
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}

		result, ok := results[req.Method]
		if !assert.True(t, ok, "unexpected method %s", req.Method) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
}

func TestLatestBlockhash(t *testing.T) {
	hash := solana.Hash{1, 2, 3, 4}
	srv := rpcServer(t, map[string]string{
		"getLatestBlockhash": `{"context":{"slot":10},"value":{"blockhash":"` + hash.String() + `","lastValidBlockHeight":150}}`,
	})
	defer srv.Close()

	bh, err := NewSolanaClient(srv.URL).LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash.String(), bh.Hash)
	assert.Equal(t, uint64(150), bh.LastValidBlockHeight)
}

func TestBlockHeight(t *testing.T) {
	srv := rpcServer(t, map[string]string{"getBlockHeight": `321`})
	defer srv.Close()

	height, err := NewSolanaClient(srv.URL).BlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(321), height)
}

func TestSignatureStatus(t *testing.T) {
	sig := solana.Signature{9, 9, 9}

	tests := []struct {
		name      string
		result    string
		found     bool
		confirmed bool
		failed    bool
	}{
		{name: "unknown", result: `{"context":{"slot":1},"value":[null]}`},
		{name: "processed", result: `{"context":{"slot":1},"value":[{"slot":1,"confirmations":0,"err":null,"confirmationStatus":"processed"}]}`, found: true},
		{name: "confirmed", result: `{"context":{"slot":1},"value":[{"slot":1,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}`, found: true, confirmed: true},
		{name: "finalized", result: `{"context":{"slot":1},"value":[{"slot":1,"confirmations":null,"err":null,"confirmationStatus":"finalized"}]}`, found: true, confirmed: true},
		{name: "failed", result: `{"context":{"slot":1},"value":[{"slot":1,"confirmations":1,"err":{"InstructionError":[1,"Custom"]},"confirmationStatus":"confirmed"}]}`, found: true, failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rpcServer(t, map[string]string{"getSignatureStatuses": tt.result})
			defer srv.Close()

			status, err := NewSolanaClient(srv.URL).SignatureStatus(context.Background(), sig.String())
			require.NoError(t, err)
			assert.Equal(t, tt.found, status.Found)
			assert.Equal(t, tt.confirmed, status.Confirmed)
			assert.Equal(t, tt.failed, status.Err != "")
		})
	}
}

func TestSignatureStatusRejectsMalformedSignature(t *testing.T) {
	_, err := NewSolanaClient("http://unused").SignatureStatus(context.Background(), "not-base58-0OIl")
	assert.Error(t, err)
}
