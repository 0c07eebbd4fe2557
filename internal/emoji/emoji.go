// Package emoji turns whatever an emoji picker hands over into the one
// canonical string stored as a reaction key: the native character sequence
// in Unicode normalization form C, without variation selectors except the
// U+FE0F that precedes a keycap mark.
package emoji

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	huddle_errors "huddle-chat/pkg/errors"
)

// maxLen bounds a single emoji sequence in bytes. The longest standard ZWJ
// sequences are well below it.
const maxLen = 64

// Selection is the payload of a picker event. Pickers fill different fields
// depending on the emoji set in use.
type Selection struct {
	Native    string `json:"native,omitempty"`
	Unified   string `json:"unified,omitempty"`
	Shortcode string `json:"shortcode,omitempty"`
}

var unifiedPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,6}(-[0-9a-fA-F]{4,6})*$`)

// Normalize picks the native form when present, then the unified code
// points, then the shortcode.
func Normalize(sel Selection) (string, error) {
	if s := strings.TrimSpace(sel.Native); s != "" {
		return native(s)
	}
	if s := strings.TrimSpace(sel.Unified); s != "" {
		return unified(s)
	}
	if s := strings.TrimSpace(sel.Shortcode); s != "" {
		return shortcode(s)
	}
	return "", fmt.Errorf("empty emoji selection: %w", huddle_errors.ErrInvalidInput)
}

// Parse accepts a native emoji, a unified code point string such as
// "1f44d" or "1f1fa-1f1f8", or a known ":shortcode:".
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("empty emoji: %w", huddle_errors.ErrInvalidInput)
	case strings.HasPrefix(s, ":") && strings.HasSuffix(s, ":") && len(s) > 2:
		return shortcode(s)
	case unifiedPattern.MatchString(s):
		return unified(s)
	default:
		return native(s)
	}
}

const (
	textSelector  = '\uFE0E'
	emojiSelector = '\uFE0F'
	keycap        = '\u20E3'
)

// canonical drops presentation selectors so "❤" and "❤️" share a key.
// Keycap sequences always carry U+FE0F before U+20E3.
func canonical(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFC.String(s) {
		switch r {
		case textSelector, emojiSelector:
			continue
		case keycap:
			b.WriteRune(emojiSelector)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func native(s string) (string, error) {
	if len(s) > maxLen || !utf8.ValidString(s) {
		return "", fmt.Errorf("emoji %q: %w", s, huddle_errors.ErrInvalidInput)
	}
	s = canonical(s)
	symbol := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), r < utf8.RuneSelf && unicode.IsLetter(r):
			return "", fmt.Errorf("emoji %q: %w", s, huddle_errors.ErrInvalidInput)
		case unicode.In(r, unicode.So, unicode.Sk), r == keycap:
			symbol = true
		}
	}
	if !symbol {
		return "", fmt.Errorf("emoji %q: %w", s, huddle_errors.ErrInvalidInput)
	}
	return s, nil
}

func unified(s string) (string, error) {
	if !unifiedPattern.MatchString(s) {
		return "", fmt.Errorf("unified emoji %q: %w", s, huddle_errors.ErrInvalidInput)
	}
	var b strings.Builder
	for _, part := range strings.Split(s, "-") {
		cp, err := strconv.ParseUint(part, 16, 32)
		if err != nil || !utf8.ValidRune(rune(cp)) {
			return "", fmt.Errorf("unified emoji %q: %w", s, huddle_errors.ErrInvalidInput)
		}
		b.WriteRune(rune(cp))
	}
	return native(b.String())
}

func shortcode(s string) (string, error) {
	name := strings.ToLower(strings.Trim(s, ":"))
	if e, ok := shortcodes[name]; ok {
		return canonical(e), nil
	}
	return "", fmt.Errorf("unknown shortcode %q: %w", s, huddle_errors.ErrInvalidInput)
}

// Shortcode returns the shortcode of a canonical emoji, if one is known.
func Shortcode(e string) (string, bool) {
	name, ok := byEmoji[canonical(e)]
	if !ok {
		return "", false
	}
	return ":" + name + ":", true
}
