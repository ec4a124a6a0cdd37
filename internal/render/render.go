// Package render substitutes {{key}} placeholders in message templates.
package render

import (
	"fmt"
	"strings"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// MissingVariableError is returned when a placeholder has no value.
type MissingVariableError struct {
	Key string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template variable %q has no value", e.Key)
}

func (e *MissingVariableError) Unwrap() error { return domain.ErrMissingVariable }

// Resolve replaces every {{key}} in tmpl with vars[key].
// Whitespace inside the braces is ignored, so {{ name }} and {{name}} are equal.
// An unterminated "{{" is copied verbatim.
func Resolve(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}

		key := strings.TrimSpace(rest[start+2 : start+2+end])
		val, ok := vars[key]
		if !ok {
			return "", &MissingVariableError{Key: key}
		}

		b.WriteString(rest[:start])
		b.WriteString(val)
		rest = rest[start+2+end+2:]
	}
}
