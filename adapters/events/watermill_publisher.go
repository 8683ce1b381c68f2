package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
)

const (
	// TopicTrigger carries detected distribution transactions
	TopicTrigger = "dripper.trigger"
	// TopicOutcome carries one event per submitted permit
	TopicOutcome = "dripper.outcome"
	// TopicSummary carries one event per finished claim run
	TopicSummary = "dripper.summary"
)

// OutcomeEvent is the payload published on TopicOutcome
type OutcomeEvent struct {
	Wallet string `json:"wallet"`
	core.SubmissionResult
}

// SummaryEvent is the payload published on TopicSummary
type SummaryEvent struct {
	Wallet string `json:"wallet"`
	core.Summary
}

// TriggerEvent is the payload published on TopicTrigger
type TriggerEvent struct {
	Wallet string `json:"wallet"`
	core.Trigger
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	wallet    string
}

// NewWatermillPublisher creates a publisher tagging every event with the wallet address
func NewWatermillPublisher(publisher message.Publisher, wallet string) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		wallet:    wallet,
	}
}

// PublishTrigger publishes a detected trigger
func (p *WatermillPublisher) PublishTrigger(ctx context.Context, trigger core.Trigger) error {
	return p.publish(ctx, TopicTrigger, TriggerEvent{Wallet: p.wallet, Trigger: trigger})
}

// PublishOutcome publishes the outcome of one permit submission
func (p *WatermillPublisher) PublishOutcome(ctx context.Context, result core.SubmissionResult) error {
	return p.publish(ctx, TopicOutcome, OutcomeEvent{Wallet: p.wallet, SubmissionResult: result})
}

// PublishSummary publishes the summary of a claim run
func (p *WatermillPublisher) PublishSummary(ctx context.Context, summary core.Summary) error {
	return p.publish(ctx, TopicSummary, SummaryEvent{Wallet: p.wallet, Summary: summary})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
