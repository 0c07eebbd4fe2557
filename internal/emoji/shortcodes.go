package emoji

var shortcodes = map[string]string{
	"+1":                    "\U0001F44D",
	"thumbsup":              "\U0001F44D",
	"-1":                    "\U0001F44E",
	"thumbsdown":            "\U0001F44E",
	"heart":                 "❤️",
	"joy":                   "\U0001F602",
	"smile":                 "\U0001F604",
	"slightly_smiling_face": "\U0001F642",
	"grin":                  "\U0001F601",
	"laughing":              "\U0001F606",
	"wink":                  "\U0001F609",
	"thinking_face":         "\U0001F914",
	"open_mouth":            "\U0001F62E",
	"cry":                   "\U0001F622",
	"sob":                   "\U0001F62D",
	"tada":                  "\U0001F389",
	"fire":                  "\U0001F525",
	"rocket":                "\U0001F680",
	"eyes":                  "\U0001F440",
	"clap":                  "\U0001F44F",
	"pray":                  "\U0001F64F",
	"raised_hands":          "\U0001F64C",
	"wave":                  "\U0001F44B",
	"ok_hand":               "\U0001F44C",
	"muscle":                "\U0001F4AA",
	"100":                   "\U0001F4AF",
	"white_check_mark":      "✅",
	"heavy_check_mark":      "✔️",
	"x":                     "❌",
	"warning":               "⚠️",
	"star":                  "⭐",
	"sparkles":              "✨",
	"coffee":                "☕",
	"bug":                   "\U0001F41B",
	"us":                    "\U0001F1FA\U0001F1F8",
}

// byEmoji maps back to the first listed shortcode of each emoji.
var byEmoji = func() map[string]string {
	m := make(map[string]string, len(shortcodes))
	for _, name := range []string{
		"+1", "-1", "heart", "joy", "smile", "slightly_smiling_face", "grin",
		"laughing", "wink", "thinking_face", "open_mouth", "cry", "sob", "tada",
		"fire", "rocket", "eyes", "clap", "pray", "raised_hands", "wave",
		"ok_hand", "muscle", "100", "white_check_mark", "heavy_check_mark", "x",
		"warning", "star", "sparkles", "coffee", "bug", "us",
	} {
		m[canonical(shortcodes[name])] = name
	}
	return m
}()
