package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags the payload variant carried by a Message. Executors register one
// handler per kind; routing never inspects payload types at runtime.
type Kind string

// Well-known kinds used by the engine itself.
const (
	// KindAggregate is the batched message delivered to a fan-in target once
	// every declared predecessor has contributed. Its payload is []Message,
	// ordered by predecessor declaration order.
	KindAggregate Kind = "aggregate"

	// KindError is the conventional kind for error-carrying messages produced
	// by executors that convert a recoverable upstream failure into data so
	// conditional edges can route around it.
	KindError Kind = "error"

	// KindTask is the kind dispatched to orchestration-manager participants.
	KindTask Kind = "task"
)

// Message is an immutable typed payload passed between executors. Source is
// stamped by the runner when the message leaves the producing executor and is
// used for fan-in correlation. Payloads must not be mutated after sending.
type Message struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Source  string    `json:"source,omitempty"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// NewMessage creates a message of the given kind.
func NewMessage(kind Kind, payload any) Message {
	return Message{
		ID:      uuid.New().String(),
		Kind:    kind,
		Payload: payload,
		SentAt:  time.Now(),
	}
}

// WithSource returns a copy of the message stamped with the producing
// executor's id.
func (m Message) WithSource(executorID string) Message {
	m.Source = executorID
	return m
}

// ErrorPayload is the payload carried by KindError messages.
type ErrorPayload struct {
	ExecutorID string `json:"executor_id"`
	Cause      string `json:"cause"`
}

// NewErrorMessage wraps a recoverable failure as a routable message.
func NewErrorMessage(executorID string, err error) Message {
	return NewMessage(KindError, ErrorPayload{
		ExecutorID: executorID,
		Cause:      err.Error(),
	})
}

// Collected unwraps the payload of a fan-in aggregate message. It returns an
// error if the message is not an aggregate, so fan-in handlers fail loudly on
// miswired graphs instead of silently processing the wrong shape.
func Collected(m Message) ([]Message, error) {
	if m.Kind != KindAggregate {
		return nil, fmt.Errorf("message %s is %q, not %q", m.ID, m.Kind, KindAggregate)
	}
	batch, ok := m.Payload.([]Message)
	if !ok {
		return nil, fmt.Errorf("aggregate message %s carries %T, not []Message", m.ID, m.Payload)
	}
	return batch, nil
}
