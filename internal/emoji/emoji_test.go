package emoji

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	huddle_errors "huddle-chat/pkg/errors"
)

const thumbsUp = "\U0001F44D"

func TestNormalizePrefersNative(t *testing.T) {
	got, err := Normalize(Selection{Native: thumbsUp, Unified: "1f600", Shortcode: ":joy:"})
	require.NoError(t, err)
	assert.Equal(t, thumbsUp, got)
}

func TestNormalizeFallbacks(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want string
	}{
		{name: "unified", sel: Selection{Unified: "1f44d"}, want: thumbsUp},
		{name: "unified uppercase", sel: Selection{Unified: "1F44D"}, want: thumbsUp},
		{name: "unified flag", sel: Selection{Unified: "1f1fa-1f1f8"}, want: "\U0001F1FA\U0001F1F8"},
		{name: "shortcode", sel: Selection{Shortcode: ":+1:"}, want: thumbsUp},
		{name: "bare shortcode", sel: Selection{Shortcode: "fire"}, want: "\U0001F525"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	for name, sel := range map[string]Selection{
		"empty":             {},
		"whitespace":        {Native: "   "},
		"plain text":        {Native: "hello"},
		"unknown shortcode": {Shortcode: ":not_a_real_one:"},
		"bad unified":       {Unified: "zzzz"},
		"surrogate":         {Unified: "d800"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(sel)
			assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)
		})
	}
}

func TestParse(t *testing.T) {
	for in, want := range map[string]string{
		thumbsUp:                     thumbsUp,
		" " + thumbsUp + " ":         thumbsUp,
		"1f44d":                      thumbsUp,
		":thumbsup:":                 thumbsUp,
		":HEART:":                    "\u2764",
		"\U0001F468\u200D\U0001F4BB": "\U0001F468\u200D\U0001F4BB",
	} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := Parse("")
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)
}

func TestVariationSelectorsShareOneKey(t *testing.T) {
	const heart = "\u2764"
	forms := []Selection{
		{Native: heart},
		{Native: heart + "\uFE0F"},
		{Native: heart + "\uFE0E"},
		{Unified: "2764"},
		{Unified: "2764-fe0f"},
		{Shortcode: ":heart:"},
	}
	for _, sel := range forms {
		got, err := Normalize(sel)
		require.NoError(t, err, sel)
		assert.Equal(t, heart, got, sel)
	}

	for _, in := range []string{heart, heart + "\uFE0F", "2764", "2764-fe0f", ":heart:"} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, heart, got, in)
	}

	name, ok := Shortcode(heart + "\uFE0F")
	assert.True(t, ok)
	assert.Equal(t, ":heart:", name)

	t.Run("keycap keeps its selector", func(t *testing.T) {
		const one = "1\uFE0F\u20E3"
		for _, in := range []string{"1\u20E3", one, "0031-20e3", "0031-fe0f-20e3"} {
			got, err := Parse(in)
			require.NoError(t, err, in)
			assert.Equal(t, one, got, in)
		}
	})

	_, err := Parse("\uFE0F")
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)
}

func TestShortcode(t *testing.T) {
	name, ok := Shortcode(thumbsUp)
	assert.True(t, ok)
	assert.Equal(t, ":+1:", name)

	_, ok = Shortcode("nope")
	assert.False(t, ok)
}
