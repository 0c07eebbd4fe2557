package commands

import (
	"fmt"

	huddle_errors "huddle-chat/pkg/errors"
)

// SimpleCommand is a command without a payload, such as refresh or
// close_thread.
type SimpleCommand struct {
	Type                string
	IdempotencyKeyValue string
}

func (c SimpleCommand) CommandType() string {
	return c.Type
}

func (c SimpleCommand) Validate() error {
	if !simple[c.Type] {
		return fmt.Errorf("%q takes a payload: %w", c.Type, huddle_errors.ErrInvalidInput)
	}
	return nil
}

func (c SimpleCommand) IdempotencyKey() string {
	return c.IdempotencyKeyValue
}
