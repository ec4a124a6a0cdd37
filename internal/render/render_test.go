package render_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notification-pipeline/internal/domain"
	"github.com/notifyhub/notification-pipeline/internal/render"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{"no placeholders", "hello", nil, "hello"},
		{"single", "Hi {{name}}!", map[string]string{"name": "Ana"}, "Hi Ana!"},
		{"repeated", "{{name}} {{name}}", map[string]string{"name": "Ana"}, "Ana Ana"},
		{"inner whitespace", "Hi {{ name }}", map[string]string{"name": "Ana"}, "Hi Ana"},
		{"unterminated copied verbatim", "Hi {{name", map[string]string{"name": "Ana"}, "Hi {{name"},
		{"extra vars ignored", "Hi", map[string]string{"name": "Ana"}, "Hi"},
		{"empty value", "[{{x}}]", map[string]string{"x": ""}, "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render.Resolve(tt.tmpl, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_MissingVariable(t *testing.T) {
	_, err := render.Resolve("Hi {{name}}, see you at {{time}}", map[string]string{"name": "Ana"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingVariable))

	var mv *render.MissingVariableError
	require.True(t, errors.As(err, &mv))
	assert.Equal(t, "time", mv.Key)
}

func TestCatalog(t *testing.T) {
	c, err := render.ParseCatalog([]byte(`
templates:
  welcome:
    subject: "Welcome, {{name}}"
    body: "Hi {{name}}, welcome!"
  plain:
    body: "no subject here"
`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	body, err := c.Render("welcome", map[string]string{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, welcome!", body)

	subject, err := c.RenderSubject("welcome", "ignored", map[string]string{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Ana", subject)

	subject, err = c.RenderSubject("plain", "Fallback {{n}}", map[string]string{"n": "1"})
	require.NoError(t, err)
	assert.Equal(t, "Fallback 1", subject)

	_, err = c.Render("missing", nil)
	assert.True(t, errors.Is(err, domain.ErrUnknownTemplate))
}

func TestParseCatalog_EmptyBody(t *testing.T) {
	_, err := render.ParseCatalog([]byte("templates:\n  broken:\n    subject: x\n"))
	assert.Error(t, err)
}

func TestShippedCatalog_RendersWithProducerVariables(t *testing.T) {
	c, err := render.LoadCatalog("../../templates.yaml")
	require.NoError(t, err)

	tests := []struct {
		id   string
		vars map[string]string
	}{
		{"welcome", map[string]string{"name": "Ana"}},
		{domain.ReminderTemplate, domain.ReminderSchedule{
			FunctionName: "usher",
			StartsAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		}.ReminderEvent(time.Now()).Variables},
		{"offering_receipt", map[string]string{"name": "Ana", "amount": "50.00", "date": "2026-03-01", "receipt": "R-1"}},
		{"general", map[string]string{"title": "Notice", "message": "Service moved to 11am"}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			body, err := c.Render(tt.id, tt.vars)
			require.NoError(t, err)
			assert.NotContains(t, body, "{{")

			subject, err := c.RenderSubject(tt.id, "", tt.vars)
			require.NoError(t, err)
			assert.NotContains(t, subject, "{{")
		})
	}
}
