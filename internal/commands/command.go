package commands

import (
	"context"
	"fmt"

	huddle_errors "huddle-chat/pkg/errors"
)

var ErrHandlerNotFound = fmt.Errorf("no handler for command: %w", huddle_errors.ErrInvalidInput)

type Command interface {
	CommandType() string
	Validate() error
	IdempotencyKey() string
}

// Result is what a handler reports back. AggregateID names the entity the
// command touched, when there is one.
type Result struct {
	AggregateID string `json:"aggregateId,omitempty"`
	Payload     any    `json:"payload,omitempty"`
}

type Handler interface {
	Handle(ctx context.Context, cmd Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// BaseCommand carries the client's request id, which doubles as the
// idempotency key and is echoed in the acknowledgement.
type BaseCommand struct {
	RequestID string `json:"-"`
}

func (b *BaseCommand) IdempotencyKey() string {
	return b.RequestID
}

func (b *BaseCommand) setRequestID(id string) {
	b.RequestID = id
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", field, huddle_errors.ErrInvalidInput)
	}
	return nil
}
