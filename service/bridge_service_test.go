package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/gamebridge/adapters/events"
	"github.com/layer-3/gamebridge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeClassifiesUpstreamFailures(t *testing.T) {
	f := newBridgeFixture(t)
	f.ledger.set("player-1", f.wallet(), "20")

	req := f.buildAndSign(t, "10")
	f.chain.heightErr = errors.New("connection refused")

	_, err := f.bridge.SubmitSigned(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Equal(t, core.KindUpstream, core.KindOf(err))
}

func TestBridgeListConversionsDefaultsToUnsettled(t *testing.T) {
	f := newBridgeFixture(t)

	seedConversion(t, f, core.StateSubmitted)
	seedConversion(t, f, core.StateConfirmed)
	seedConversion(t, f, core.StateDeductFailed)

	list, err := f.bridge.ListConversions(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.bridge.ListConversions(context.Background(), core.StateConfirmed)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBridgePlayerBalance(t *testing.T) {
	f := newBridgeFixture(t)
	f.ledger.set("player-1", f.wallet(), "42.5")

	rec, err := f.bridge.PlayerBalance(context.Background(), "player-1")
	require.NoError(t, err)
	assert.Equal(t, "42.5", rec.Balance.String())

	_, err = f.bridge.PlayerBalance(context.Background(), "nobody")
	assert.ErrorIs(t, err, core.ErrPlayerNotFound)
}

func TestFinalizePublishesLifecycle(t *testing.T) {
	f := newBridgeFixture(t)
	f.ledger.set("player-1", f.wallet(), "20")

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer pubSub.Close()

	msgs, err := pubSub.Subscribe(context.Background(), events.ConversionTopic)
	require.NoError(t, err)

	f.finalizer.events = events.NewWatermillPublisher(pubSub)

	_, err = f.bridge.SubmitSigned(context.Background(), f.buildAndSign(t, "10"))
	require.NoError(t, err)

	var states []string
	timeout := time.After(2 * time.Second)
	for len(states) < 5 {
		select {
		case msg := <-msgs:
			var ev events.ConversionEvent
			require.NoError(t, json.Unmarshal(msg.Payload, &ev))
			assert.Equal(t, ev.State, msg.Metadata.Get("state"))
			states = append(states, ev.State)
			msg.Ack()
		case <-timeout:
			t.Fatalf("received only %v", states)
		}
	}

	assert.ElementsMatch(t, []string{
		string(core.StateTreasurySigned),
		string(core.StateSubmitted),
		string(core.StateDeducting),
		string(core.StateDeducted),
		string(core.StateConfirmed),
	}, states)
}
