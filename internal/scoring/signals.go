package scoring

import (
	"regexp"
	"strings"
	"unicode"
)

var pronounPatterns = []string{
	"he/him", "she/her", "they/them", "he/they", "she/they",
	"any/all", "it/its", "pronouns",
}

var urlPattern = regexp.MustCompile(`(?i)(https?://|www\.|discord\.gg/)\S+`)

var emphasisPattern = regexp.MustCompile(`\*\*[^*]+\*\*|__[^_]+__|~~[^~]+~~|\*[^*\s][^*]*\*|_[^_\s][^_]*_`)

const decorativeGlyphs = "✦★☆✧✩♡♥❀✿☾☽⋆｡°♪♫ꕥ✰❥☁♛♕"

func hasPronouns(texts ...string) bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, p := range pronounPatterns {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}
	return false
}

func hasURL(s string) bool {
	return urlPattern.MatchString(s)
}

func hasEmphasis(s string) bool {
	return emphasisPattern.MatchString(s)
}

func hasDecorativeGlyph(texts ...string) bool {
	for _, t := range texts {
		if strings.ContainsAny(t, decorativeGlyphs) {
			return true
		}
	}
	return false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// isCleanUsername accepts names with few digits or that are simply short.
func isCleanUsername(name string) bool {
	return countDigits(name) <= 2 || len([]rune(name)) <= 5
}
