// Package presence tracks who is online in Redis and mirrors every
// transition into the user directory.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"huddle-chat/internal/domain"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

const (
	DefaultTTL = 5 * time.Minute

	// offlineTTL keeps an offline record around for last-seen lookups.
	offlineTTL = 24 * time.Hour

	StatusOffline = "offline"
)

// Status is a user's presence record.
type Status struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// UserMirror receives presence transitions. The user repository implements
// it.
type UserMirror interface {
	UpdatePresence(ctx context.Context, id string, online bool, status domain.UserStatus, lastSeen time.Time) error
}

type Store struct {
	client *goredis.Client
	users  UserMirror
	ttl    time.Duration
	prefix string
	now    func() time.Time
	logger *logger.Logger
}

func New(client *goredis.Client, users UserMirror, ttl time.Duration, l *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		users:  users,
		ttl:    ttl,
		prefix: "presence:",
		now:    time.Now,
		logger: logger.OrNop(l).Named("presence"),
	}
}

func (s *Store) key(userID string) string         { return s.prefix + "user:" + userID }
func (s *Store) onlineKey() string                { return s.prefix + "online" }
func (s *Store) heartbeatKey() string             { return s.prefix + "heartbeats" }
func (s *Store) connectionsKey(uid string) string { return s.prefix + "conn:" + uid }

func (s *Store) SetOnline(ctx context.Context, userID string) error {
	return s.transition(ctx, userID, true, string(domain.UserStatusActive))
}

func (s *Store) SetAway(ctx context.Context, userID string) error {
	return s.transition(ctx, userID, true, string(domain.UserStatusAway))
}

func (s *Store) SetOffline(ctx context.Context, userID string) error {
	return s.transition(ctx, userID, false, StatusOffline)
}

func (s *Store) transition(ctx context.Context, userID string, online bool, status string) error {
	if userID == "" {
		return fmt.Errorf("presence: %w", huddle_errors.ErrInvalidInput)
	}
	now := s.now()
	data, err := json.Marshal(Status{UserID: userID, Online: online, Status: status, LastSeen: now})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if online {
		pipe.Set(ctx, s.key(userID), data, s.ttl)
		pipe.SAdd(ctx, s.onlineKey(), userID)
		pipe.ZAdd(ctx, s.heartbeatKey(), goredis.Z{Score: float64(now.Unix()), Member: userID})
	} else {
		pipe.Set(ctx, s.key(userID), data, offlineTTL)
		pipe.SRem(ctx, s.onlineKey(), userID)
		pipe.ZRem(ctx, s.heartbeatKey(), userID)
		pipe.Del(ctx, s.connectionsKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence %s -> %s: %w", userID, status, err)
	}

	s.mirror(ctx, userID, online, status, now)
	return nil
}

// mirror copies the transition into the user document. A user without a
// document is skipped.
func (s *Store) mirror(ctx context.Context, userID string, online bool, status string, at time.Time) {
	if s.users == nil {
		return
	}
	var userStatus domain.UserStatus
	if status != StatusOffline {
		userStatus = domain.UserStatus(status)
	}
	err := s.users.UpdatePresence(ctx, userID, online, userStatus, at)
	switch {
	case err == nil:
	case errors.Is(err, huddle_errors.ErrNotFound):
		s.logger.Debugf("presence of %s not mirrored, no user document", userID)
	default:
		s.logger.Warnf("mirroring presence of %s failed: %v", userID, err)
	}
}

// Heartbeat keeps an online user from going stale.
func (s *Store) Heartbeat(ctx context.Context, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, s.key(userID), s.ttl)
	pipe.ZAddXX(ctx, s.heartbeatKey(), goredis.Z{Score: float64(s.now().Unix()), Member: userID})
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the presence record of a user; unknown users are offline.
func (s *Store) Get(ctx context.Context, userID string) (*Status, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return &Status{UserID: userID, Status: StatusOffline}, nil
	}
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetMany looks up several users in one round trip.
func (s *Store) GetMany(ctx context.Context, userIDs []string) (map[string]*Status, error) {
	out := make(map[string]*Status, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*goredis.StringCmd, len(userIDs))
	for _, id := range userIDs {
		cmds[id] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	for id, cmd := range cmds {
		st := &Status{UserID: id, Status: StatusOffline}
		if data, err := cmd.Result(); err == nil {
			if err := json.Unmarshal([]byte(data), st); err != nil {
				st = &Status{UserID: id, Status: StatusOffline}
			}
		}
		out[id] = st
	}
	return out, nil
}

func (s *Store) Online(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.onlineKey()).Result()
}

// CleanupStale marks users offline whose last heartbeat is older than
// maxAge and returns how many there were.
func (s *Store) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	threshold := s.now().Add(-maxAge).Unix()
	stale, err := s.client.ZRangeByScore(ctx, s.heartbeatKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(threshold, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, userID := range stale {
		if err := s.SetOffline(ctx, userID); err != nil {
			s.logger.Warnf("cleanup of stale presence %s failed: %v", userID, err)
			continue
		}
		n++
	}
	return n, nil
}

// Connect records a client connection and marks the user online.
func (s *Store) Connect(ctx context.Context, userID, clientID string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.connectionsKey(userID), clientID, s.now().UTC().Format(time.RFC3339))
	pipe.Expire(ctx, s.connectionsKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.SetOnline(ctx, userID)
}

// Disconnect forgets a client connection. The user goes offline when it was
// the last one.
func (s *Store) Disconnect(ctx context.Context, userID, clientID string) error {
	if err := s.client.HDel(ctx, s.connectionsKey(userID), clientID).Err(); err != nil {
		return err
	}
	remaining, err := s.client.HLen(ctx, s.connectionsKey(userID)).Result()
	if err != nil {
		return err
	}
	if remaining == 0 {
		return s.SetOffline(ctx, userID)
	}
	return nil
}

// Sweep runs CleanupStale every interval until ctx ends.
func (s *Store) Sweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := s.CleanupStale(ctx, s.ttl); err != nil {
				s.logger.Warnf("presence sweep failed: %v", err)
			} else if n > 0 {
				s.logger.Infof("presence sweep marked %d users offline", n)
			}
		}
	}
}
