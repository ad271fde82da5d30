package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
)

// ConversionTopic receives one message per conversion state change
const ConversionTopic = "gamebridge.conversions"

// ConversionEvent represents a conversion state change
type ConversionEvent struct {
	ConversionID  string `json:"conversion_id"`
	Signature     string `json:"signature"`
	PlayerID      string `json:"player_id"`
	WalletAddress string `json:"wallet_address"`
	Amount        string `json:"amount"`
	State         string `json:"state"`
	NewBalance    string `json:"new_balance,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     ConversionTopic,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishConversion publishes the current state of a conversion
func (p *WatermillPublisher) PublishConversion(ctx context.Context, c *core.Conversion) error {
	event := ConversionEvent{
		ConversionID:  c.ID,
		Signature:     c.Signature,
		PlayerID:      c.PlayerID,
		WalletAddress: c.WalletAddress,
		Amount:        c.Amount.String(),
		State:         string(c.State),
		NewBalance:    c.NewBalance,
		Error:         c.Error,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("state", event.State)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
