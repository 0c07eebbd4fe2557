package commands

import (
	"encoding/json"
	"fmt"

	huddle_errors "huddle-chat/pkg/errors"
)

// Envelope is a command frame as sent by the client.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var typed = map[string]func() Command{
	TypeSelectChannel:  func() Command { return &SelectChannelCommand{} },
	TypeSelectDM:       func() Command { return &SelectDMCommand{} },
	TypeOpenThread:     func() Command { return &OpenThreadCommand{} },
	TypeSetStatus:      func() Command { return &SetStatusCommand{} },
	TypeSendMessage:    func() Command { return &SendMessageCommand{} },
	TypeSendReply:      func() Command { return &SendReplyCommand{} },
	TypeEditMessage:    func() Command { return &EditMessageCommand{} },
	TypeDeleteMessage:  func() Command { return &DeleteMessageCommand{} },
	TypeToggleReaction: func() Command { return &ToggleReactionCommand{} },
	TypeOpenPopover:    func() Command { return &OpenPopoverCommand{} },
	TypeBeginEdit:      func() Command { return &BeginEditCommand{} },
	TypeSetDraft:       func() Command { return &SetDraftCommand{} },
}

var simple = map[string]bool{
	TypeRefresh:       true,
	TypeCloseThread:   true,
	TypeHeartbeat:     true,
	TypeToggleMembers: true,
	TypeEscape:        true,
	TypeCommitEdit:    true,
	TypeCancelEdit:    true,
}

// Decode parses a client frame into its command. The envelope is returned
// even on error so the caller can address the failure to the request id.
func Decode(data []byte) (Envelope, Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("decode command: %v: %w", err, huddle_errors.ErrInvalidInput)
	}
	if simple[env.Type] {
		return env, SimpleCommand{Type: env.Type, IdempotencyKeyValue: env.ID}, nil
	}
	build, ok := typed[env.Type]
	if !ok {
		return env, nil, fmt.Errorf("unknown command %q: %w", env.Type, huddle_errors.ErrInvalidInput)
	}
	cmd := build()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return env, nil, fmt.Errorf("decode %s: %v: %w", env.Type, err, huddle_errors.ErrInvalidInput)
		}
	}
	if b, ok := cmd.(interface{ setRequestID(string) }); ok {
		b.setRequestID(env.ID)
	}
	return env, cmd, nil
}
