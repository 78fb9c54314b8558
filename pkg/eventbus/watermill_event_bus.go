package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/docuflow/docuflow/pkg/events"
)

// WatermillEventBus routes both step and escalation topics through a single
// watermill publisher/subscriber pair.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func topicFor(eventType events.EventType) string {
	switch eventType {
	case events.EscalationTriggeredEvent, events.EscalationResolvedEvent, events.DispatchCompletedEvent:
		return events.EscalationTopic
	default:
		return events.StepTopic
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.StepTopic, events.EscalationTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		var event any

		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			msg.Ack()

			continue
		}

		switch eventType {
		case events.StepTransitionEvent:
			event = &events.StepTransition{}
		case events.StepCompletedEvent:
			event = &events.StepCompleted{}
		case events.StepReassignedEvent:
			event = &events.StepReassigned{}
		case events.EscalationTriggeredEvent:
			event = &events.EscalationTriggered{}
		case events.EscalationResolvedEvent:
			event = &events.EscalationResolved{}
		case events.DispatchCompletedEvent:
			event = &events.DispatchCompleted{}
		default:
			msg.Nack()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			msg.Nack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
