package kafka

import (
	"context"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// DefaultSource names this service in event envelopes.
const DefaultSource = "licenseiq-royalty"

// MessagePublisher is the part of Producer the EventPublisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
}

// EventPublisher turns royalty events into Kafka messages.
type EventPublisher struct {
	producer MessagePublisher
	source   string
	logger   logging.Logger
}

// NewEventPublisher wraps producer.
func NewEventPublisher(producer MessagePublisher, logger logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EventPublisher{producer: producer, source: DefaultSource, logger: logger.Named("events")}
}

// PublishRulesExtracted sends evt to TopicRulesExtracted.
func (p *EventPublisher) PublishRulesExtracted(ctx context.Context, evt *royalty.RulesExtractedEvent) error {
	return p.publish(ctx, TopicRulesExtracted, evt)
}

// PublishRuleGaps sends one gap report for the contract.
func (p *EventPublisher) PublishRuleGaps(ctx context.Context, contractID string, gaps []royalty.RuleGap) error {
	if len(gaps) == 0 {
		return nil
	}
	return p.publish(ctx, TopicRuleGapDetected, royalty.NewRuleGapEvent(contractID, gaps))
}

// PublishCalculationCompleted sends a summary of res.
func (p *EventPublisher) PublishCalculationCompleted(ctx context.Context, res *royalty.CalculationResult) error {
	return p.publish(ctx, TopicCalculationCompleted, royalty.NewCalculationCompletedEvent(res))
}

func (p *EventPublisher) publish(ctx context.Context, topic string, evt common.DomainEvent) error {
	env, err := NewEventEnvelope(evt, p.source)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_id", env.EventID),
		logging.String("aggregate_id", env.AggregateID))
	return nil
}
