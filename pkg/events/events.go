// Package events defines the event types exchanged with the external
// workflow engine and published by the escalation core.
package events

import (
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

type EventType string

// Kafka topics.
const StepTopic = "docuflow.step.events"             // Step lifecycle events from the workflow engine
const EscalationTopic = "docuflow.escalation.events" // Events published by the escalation core

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Step lifecycle events consumed from the workflow engine.
	StepTransitionEvent EventType = "step.transition"
	StepCompletedEvent  EventType = "step.completed"
	StepReassignedEvent EventType = "step.reassigned"

	// Events published by this core.
	EscalationTriggeredEvent EventType = "escalation.triggered"
	EscalationResolvedEvent  EventType = "escalation.resolved"
	DispatchCompletedEvent   EventType = "dispatch.completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StepTransition is emitted by the workflow engine whenever a workflow
// instance enters a step. The event id doubles as the idempotency key for
// action dispatch, tolerating at-least-once delivery.
type StepTransition struct {
	BaseEvent

	StepInstanceID     string         `json:"step_instance_id"`
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	WorkflowID         string         `json:"workflow_id"`
	FromStepID         string         `json:"from_step_id,omitempty"`
	ToStepID           string         `json:"to_step_id"`
	Context            map[string]any `json:"context,omitempty"`
}

func (e StepTransition) GetType() EventType {
	return StepTransitionEvent
}

type StepCompleted struct {
	BaseEvent

	StepInstanceID     string `json:"step_instance_id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
	StepID             string `json:"step_id"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepReassigned struct {
	BaseEvent

	StepInstanceID string `json:"step_instance_id"`
	NewAssigneeID  string `json:"new_assignee_id"`
}

func (e StepReassigned) GetType() EventType {
	return StepReassignedEvent
}

type EscalationTriggered struct {
	BaseEvent

	InstanceID     string `json:"instance_id"`
	RuleID         string `json:"rule_id"`
	StepInstanceID string `json:"step_instance_id"`
	Level          int    `json:"level"`
}

func (e EscalationTriggered) GetType() EventType {
	return EscalationTriggeredEvent
}

type EscalationResolved struct {
	BaseEvent

	InstanceID     string                  `json:"instance_id"`
	RuleID         string                  `json:"rule_id"`
	StepInstanceID string                  `json:"step_instance_id"`
	Status         models.EscalationStatus `json:"status"`
}

func (e EscalationResolved) GetType() EventType {
	return EscalationResolvedEvent
}

// DispatchCompleted summarizes one action dispatch for downstream consumers.
type DispatchCompleted struct {
	BaseEvent

	GroupID        string `json:"group_id"`
	StepInstanceID string `json:"step_instance_id"`
	EventID        string `json:"event_id"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
}

func (e DispatchCompleted) GetType() EventType {
	return DispatchCompletedEvent
}
