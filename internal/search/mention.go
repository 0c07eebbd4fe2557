package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"huddle-chat/internal/domain/user"
)

// MentionQuery reports the @token being typed at cursor, a byte offset into
// text. start is the offset of the '@'. The token must start at the
// beginning of text or after whitespace and may not contain whitespace.
func MentionQuery(text string, cursor int) (query string, start int, ok bool) {
	if cursor < 0 || cursor > len(text) {
		return "", -1, false
	}
	head := text[:cursor]
	at := strings.LastIndexByte(head, '@')
	if at < 0 {
		return "", -1, false
	}
	if at > 0 {
		r, _ := utf8.DecodeLastRuneInString(head[:at])
		if !unicode.IsSpace(r) {
			return "", -1, false
		}
	}
	token := head[at+1:]
	if strings.IndexFunc(token, unicode.IsSpace) >= 0 {
		return "", -1, false
	}
	return token, at, true
}

// InsertMention replaces text[start:cursor] with "@label " and returns the
// new text and the cursor just after the inserted space.
func InsertMention(text string, start, cursor int, label string) (string, int) {
	if start < 0 || start > cursor || cursor > len(text) {
		return text, cursor
	}
	insert := "@" + label + " "
	tail := text[cursor:]
	tail = strings.TrimPrefix(tail, " ")
	return text[:start] + insert + tail, start + len(insert)
}

// ExtractMentions returns the ids of users mentioned as "@Display Name" in
// text, in order of first mention. Longer names win, so "@Ada Lovelace" is
// not read as "@Ada" when both users exist.
func ExtractMentions(text string, users []*user.User) []string {
	type candidate struct {
		label string
		id    string
	}
	var cands []candidate
	for _, u := range users {
		if label := u.Label(); label != "" {
			cands = append(cands, candidate{label: strings.ToLower(label), id: u.ID})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return len(cands[i].label) > len(cands[j].label) })

	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var ids []string
	for i := 0; i < len(lower); i++ {
		if lower[i] != '@' {
			continue
		}
		if i > 0 {
			r, _ := utf8.DecodeLastRuneInString(lower[:i])
			if !unicode.IsSpace(r) && !unicode.IsPunct(r) {
				continue
			}
		}
		rest := lower[i+1:]
		for _, c := range cands {
			if !strings.HasPrefix(rest, c.label) || !boundary(rest[len(c.label):]) {
				continue
			}
			if !seen[c.id] {
				seen[c.id] = true
				ids = append(ids, c.id)
			}
			i += len(c.label)
			break
		}
	}
	return ids
}

func boundary(s string) bool {
	if s == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_' && r != '-')
}
