package web

import "strings"

// Message keys used by the runtime itself.
const (
	MessageNotFound   = "system.page.notFound"
	MessageQueryError = "system.page.queryError"
)

// Lexicon translates message keys.
type Lexicon map[string]string

// Translate returns the message for key, or fallback when absent. Keys
// loaded from config files are lower-cased, so the lower-case form of key
// is tried as well.
func (l Lexicon) Translate(key, fallback string) string {
	if msg := l[key]; msg != "" {
		return msg
	}
	if msg := l[strings.ToLower(key)]; msg != "" {
		return msg
	}
	return fallback
}
