package console

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf16"
)

// Toast levels.
const (
	LevelSuccess = "success"
	LevelDanger  = "danger"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Toast is a transient notification.
type Toast struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func success(msg string) *Toast { return &Toast{Message: msg, Level: LevelSuccess} }
func danger(msg string) *Toast  { return &Toast{Message: msg, Level: LevelDanger} }
func warning(msg string) *Toast { return &Toast{Message: msg, Level: LevelWarning} }
func info(msg string) *Toast    { return &Toast{Message: msg, Level: LevelInfo} }

// Feedback is what an action tells the page: an optional toast, whether the
// open modal should close and which list to reload.
type Feedback struct {
	Toast      *Toast
	CloseModal bool
	Reload     []string // event names, e.g. "reload-keys"
}

// Reload events listened for by page fragments.
const (
	reloadKeys       = "reload-keys"
	reloadModels     = "reload-models"
	reloadHistory    = "reload-history"
	reloadChatModels = "reload-chat-models"
)

// header encodes feedback as an HX-Trigger value. Empty feedback encodes to "".
func (f Feedback) header() string {
	events := map[string]any{}
	if f.Toast != nil {
		events["toast"] = f.Toast
	}
	if f.CloseModal {
		events["closeModal"] = true
	}
	for _, name := range f.Reload {
		events[name] = true
	}
	if len(events) == 0 {
		return ""
	}
	b, err := json.Marshal(events)
	if err != nil {
		return ""
	}
	return asciiJSON(string(b))
}

// asciiJSON escapes every non-ASCII rune as \uXXXX. Header bytes reach the
// browser as Latin-1, so raw UTF-8 would garble backend messages.
func asciiJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x7f:
			b.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, "\\u%04x\\u%04x", hi, lo)
		default:
			fmt.Fprintf(&b, "\\u%04x", r)
		}
	}
	return b.String()
}

// apply sets the HX-Trigger header. It must run before the body is written.
func (f Feedback) apply(w http.ResponseWriter) {
	if h := f.header(); h != "" {
		w.Header().Set("HX-Trigger", h)
	}
}
