// Package search builds autocomplete suggestions and resolves mentions.
package search

import (
	"net/mail"
	"sort"
	"strings"

	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/user"
)

const DefaultLimit = 8

type Kind string

const (
	KindChannel Kind = "channel"
	KindUser    Kind = "user"
	KindEmail   Kind = "email"
)

type Suggestion struct {
	Kind   Kind   `json:"kind"`
	ID     string `json:"id"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Avatar string `json:"avatar,omitempty"`
}

// Suggest matches query against channel names and user names and emails.
// A leading '#' limits the search to channels, a leading '@' to users.
// Prefix matches rank above substring matches. When the query is a valid
// email address that belongs to no known user an email suggestion is
// appended so the address can be invited.
func Suggest(query string, channels []*channel.Channel, users []*user.User, limit int) []Suggestion {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := strings.TrimSpace(query)
	wantChannels, wantUsers := true, true
	switch {
	case strings.HasPrefix(q, "#"):
		q, wantUsers = q[1:], false
	case strings.HasPrefix(q, "@"):
		q, wantChannels = q[1:], false
	}
	q = strings.ToLower(q)
	if q == "" {
		return nil
	}

	var prefix, contains []Suggestion
	add := func(s Suggestion, rank int) {
		switch rank {
		case 1:
			prefix = append(prefix, s)
		case 2:
			contains = append(contains, s)
		}
	}

	if wantChannels {
		for _, ch := range channels {
			add(Suggestion{
				Kind:  KindChannel,
				ID:    ch.ID,
				Label: ch.Name,
				Value: "#" + ch.Name,
			}, match(q, ch.Name))
		}
	}

	emailKnown := false
	if wantUsers {
		for _, u := range users {
			if strings.EqualFold(u.Email, q) {
				emailKnown = true
			}
			rank := match(q, u.DisplayName)
			if r := match(q, u.Email); r != 0 && (rank == 0 || r < rank) {
				rank = r
			}
			add(Suggestion{
				Kind:   KindUser,
				ID:     u.ID,
				Label:  u.Label(),
				Value:  "@" + u.Label(),
				Avatar: u.AvatarURL,
			}, rank)
		}
	}

	byLabel := func(s []Suggestion) {
		sort.SliceStable(s, func(i, j int) bool {
			return strings.ToLower(s[i].Label) < strings.ToLower(s[j].Label)
		})
	}
	byLabel(prefix)
	byLabel(contains)

	out := append(prefix, contains...)
	if len(out) > limit {
		out = out[:limit]
	}

	if wantUsers && !emailKnown && isEmail(q) && len(out) < limit {
		out = append(out, Suggestion{Kind: KindEmail, ID: q, Label: q, Value: q})
	}
	return out
}

// match returns 1 for a case-insensitive prefix match, 2 for a substring
// match and 0 otherwise. q must already be lower case.
func match(q, s string) int {
	if s == "" {
		return 0
	}
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, q):
		return 1
	case strings.Contains(s, q):
		return 2
	}
	return 0
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
