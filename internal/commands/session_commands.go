package commands

import (
	"fmt"
	"strings"

	"huddle-chat/internal/uistate"
	huddle_errors "huddle-chat/pkg/errors"
)

const (
	TypeSelectChannel  = "select_channel"
	TypeSelectDM       = "select_dm"
	TypeRefresh        = "refresh"
	TypeOpenThread     = "open_thread"
	TypeCloseThread    = "close_thread"
	TypeHeartbeat      = "heartbeat"
	TypeSetStatus      = "set_status"
	TypeSendMessage    = "send_message"
	TypeSendReply      = "send_reply"
	TypeEditMessage    = "edit_message"
	TypeDeleteMessage  = "delete_message"
	TypeToggleReaction = "toggle_reaction"

	TypeOpenPopover   = "open_popover"
	TypeToggleMembers = "toggle_members"
	TypeEscape        = "escape"
	TypeBeginEdit     = "begin_edit"
	TypeSetDraft      = "set_draft"
	TypeCommitEdit    = "commit_edit"
	TypeCancelEdit    = "cancel_edit"
)

type SelectChannelCommand struct {
	BaseCommand
	ChannelID string `json:"channelId"`
}

func (c *SelectChannelCommand) CommandType() string { return TypeSelectChannel }
func (c *SelectChannelCommand) Validate() error     { return required("channelId", c.ChannelID) }

// SelectDMCommand selects the DM with another user.
type SelectDMCommand struct {
	BaseCommand
	UserID string `json:"userId"`
}

func (c *SelectDMCommand) CommandType() string { return TypeSelectDM }
func (c *SelectDMCommand) Validate() error     { return required("userId", c.UserID) }

type OpenThreadCommand struct {
	BaseCommand
	MessageID string `json:"messageId"`
}

func (c *OpenThreadCommand) CommandType() string { return TypeOpenThread }
func (c *OpenThreadCommand) Validate() error     { return required("messageId", c.MessageID) }

type SetStatusCommand struct {
	BaseCommand
	Status string `json:"status"`
}

func (c *SetStatusCommand) CommandType() string { return TypeSetStatus }
func (c *SetStatusCommand) Validate() error     { return required("status", c.Status) }

type SendMessageCommand struct {
	BaseCommand
	Text string `json:"text"`
}

func (c *SendMessageCommand) CommandType() string { return TypeSendMessage }
func (c *SendMessageCommand) Validate() error     { return requiredText(c.Text) }

// SendReplyCommand replies in the open thread.
type SendReplyCommand struct {
	BaseCommand
	Text string `json:"text"`
}

func (c *SendReplyCommand) CommandType() string { return TypeSendReply }
func (c *SendReplyCommand) Validate() error     { return requiredText(c.Text) }

type EditMessageCommand struct {
	BaseCommand
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

func (c *EditMessageCommand) CommandType() string { return TypeEditMessage }

func (c *EditMessageCommand) Validate() error {
	if err := required("messageId", c.MessageID); err != nil {
		return err
	}
	return requiredText(c.Text)
}

type DeleteMessageCommand struct {
	BaseCommand
	MessageID string `json:"messageId"`
}

func (c *DeleteMessageCommand) CommandType() string { return TypeDeleteMessage }
func (c *DeleteMessageCommand) Validate() error     { return required("messageId", c.MessageID) }

type ToggleReactionCommand struct {
	BaseCommand
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

func (c *ToggleReactionCommand) CommandType() string { return TypeToggleReaction }

func (c *ToggleReactionCommand) Validate() error {
	if err := required("messageId", c.MessageID); err != nil {
		return err
	}
	return required("emoji", c.Emoji)
}

const (
	PopoverEmojiPicker = "emoji_picker"
	PopoverEditMenu    = "edit_menu"
)

// OpenPopoverCommand opens the emoji picker or the edit menu next to the
// trigger element. Geometry is in CSS pixels.
type OpenPopoverCommand struct {
	BaseCommand
	Popover   string       `json:"popover"`
	MessageID string       `json:"messageId"`
	Trigger   uistate.Rect `json:"trigger"`
	Viewport  uistate.Size `json:"viewport"`
}

func (c *OpenPopoverCommand) CommandType() string { return TypeOpenPopover }

func (c *OpenPopoverCommand) Validate() error {
	switch c.Popover {
	case PopoverEmojiPicker:
	case PopoverEditMenu:
		if err := required("messageId", c.MessageID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("popover %q: %w", c.Popover, huddle_errors.ErrInvalidInput)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport: %w", huddle_errors.ErrInvalidInput)
	}
	return nil
}

type BeginEditCommand struct {
	BaseCommand
	MessageID string `json:"messageId"`
}

func (c *BeginEditCommand) CommandType() string { return TypeBeginEdit }
func (c *BeginEditCommand) Validate() error     { return required("messageId", c.MessageID) }

type SetDraftCommand struct {
	BaseCommand
	Text string `json:"text"`
}

func (c *SetDraftCommand) CommandType() string { return TypeSetDraft }
func (c *SetDraftCommand) Validate() error     { return nil }

func requiredText(text string) error {
	return required("text", strings.TrimSpace(text))
}
