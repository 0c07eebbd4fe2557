package services

import (
	"context"

	"huddle-chat/internal/commands"
	huddle_errors "huddle-chat/pkg/errors"
)

var sessionKey ctxKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// signedIn rejects commands from connections without a signed-in session.
type signedIn struct{}

func (signedIn) Authorize(ctx context.Context, _ commands.Command) error {
	s, ok := SessionFromContext(ctx)
	if !ok || s.Identity() == nil {
		return huddle_errors.ErrNotAuthenticated
	}
	return nil
}

func handle[T commands.Command](bus *commands.Bus, commandType string, fn func(ctx context.Context, s *Session, cmd T) (commands.Result, error)) {
	bus.Register(commandType, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		typed, ok := cmd.(T)
		if !ok {
			return commands.Result{}, huddle_errors.ErrInvalidInput
		}
		s, ok := SessionFromContext(ctx)
		if !ok {
			return commands.Result{}, huddle_errors.ErrNotAuthenticated
		}
		return fn(ctx, s, typed)
	}))
}

// simple registers a payload-less command.
func simple(bus *commands.Bus, commandType string, fn func(ctx context.Context, s *Session) error) {
	handle(bus, commandType, func(ctx context.Context, s *Session, _ commands.SimpleCommand) (commands.Result, error) {
		return commands.Result{}, fn(ctx, s)
	})
}

// NewCommandBus returns the bus that drives sessions from WebSocket
// frames. Handlers find their session in the context (see WithSession).
func NewCommandBus() *commands.Bus {
	bus := commands.NewBus(signedIn{})

	handle(bus, commands.TypeSelectChannel, func(ctx context.Context, s *Session, cmd *commands.SelectChannelCommand) (commands.Result, error) {
		return commands.Result{AggregateID: cmd.ChannelID}, s.SelectChannel(ctx, cmd.ChannelID)
	})
	handle(bus, commands.TypeSelectDM, func(ctx context.Context, s *Session, cmd *commands.SelectDMCommand) (commands.Result, error) {
		return commands.Result{AggregateID: cmd.UserID}, s.SelectDM(ctx, cmd.UserID)
	})
	simple(bus, commands.TypeRefresh, func(ctx context.Context, s *Session) error {
		return s.Refresh(ctx)
	})
	handle(bus, commands.TypeOpenThread, func(ctx context.Context, s *Session, cmd *commands.OpenThreadCommand) (commands.Result, error) {
		return commands.Result{AggregateID: cmd.MessageID}, s.OpenThread(ctx, cmd.MessageID)
	})
	simple(bus, commands.TypeCloseThread, func(_ context.Context, s *Session) error {
		s.CloseThread()
		return nil
	})
	simple(bus, commands.TypeHeartbeat, func(ctx context.Context, s *Session) error {
		return s.Heartbeat(ctx)
	})
	handle(bus, commands.TypeSetStatus, func(ctx context.Context, s *Session, cmd *commands.SetStatusCommand) (commands.Result, error) {
		return commands.Result{}, s.SetStatus(ctx, cmd.Status)
	})

	handle(bus, commands.TypeSendMessage, func(ctx context.Context, s *Session, cmd *commands.SendMessageCommand) (commands.Result, error) {
		m, err := s.Send(ctx, cmd.Text)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: m.ID, Payload: m}, nil
	})
	handle(bus, commands.TypeSendReply, func(ctx context.Context, s *Session, cmd *commands.SendReplyCommand) (commands.Result, error) {
		m, err := s.Reply(ctx, cmd.Text)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: m.ID, Payload: m}, nil
	})
	handle(bus, commands.TypeEditMessage, func(ctx context.Context, s *Session, cmd *commands.EditMessageCommand) (commands.Result, error) {
		return commands.Result{AggregateID: cmd.MessageID}, s.Edit(ctx, cmd.MessageID, cmd.Text)
	})
	handle(bus, commands.TypeDeleteMessage, func(ctx context.Context, s *Session, cmd *commands.DeleteMessageCommand) (commands.Result, error) {
		return commands.Result{AggregateID: cmd.MessageID}, s.Delete(ctx, cmd.MessageID)
	})
	handle(bus, commands.TypeToggleReaction, func(ctx context.Context, s *Session, cmd *commands.ToggleReactionCommand) (commands.Result, error) {
		res, err := s.React(ctx, cmd.MessageID, cmd.Emoji)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: cmd.MessageID, Payload: res}, nil
	})

	handle(bus, commands.TypeOpenPopover, func(_ context.Context, s *Session, cmd *commands.OpenPopoverCommand) (commands.Result, error) {
		if cmd.Popover == commands.PopoverEditMenu {
			s.OpenEditMenu(cmd.MessageID, cmd.Trigger, cmd.Viewport)
		} else {
			s.OpenEmojiPicker(cmd.MessageID, cmd.Trigger, cmd.Viewport)
		}
		return commands.Result{Payload: s.UI()}, nil
	})
	simple(bus, commands.TypeToggleMembers, func(_ context.Context, s *Session) error {
		s.ToggleMembers()
		return nil
	})
	simple(bus, commands.TypeEscape, func(_ context.Context, s *Session) error {
		s.Escape()
		return nil
	})
	handle(bus, commands.TypeBeginEdit, func(ctx context.Context, s *Session, cmd *commands.BeginEditCommand) (commands.Result, error) {
		return commands.Result{AggregateID: cmd.MessageID}, s.BeginEdit(ctx, cmd.MessageID)
	})
	handle(bus, commands.TypeSetDraft, func(_ context.Context, s *Session, cmd *commands.SetDraftCommand) (commands.Result, error) {
		s.SetDraft(cmd.Text)
		return commands.Result{}, nil
	})
	simple(bus, commands.TypeCommitEdit, func(ctx context.Context, s *Session) error {
		return s.CommitEdit(ctx)
	})
	simple(bus, commands.TypeCancelEdit, func(_ context.Context, s *Session) error {
		s.CancelEdit()
		return nil
	})
	return bus
}
