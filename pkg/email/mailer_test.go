package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/email"
)

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	valid := email.Message{To: "user@example.com", Subject: "Hi", HTML: "<p>x</p>"}

	tests := []struct {
		name    string
		mutate  func(*email.Message)
		wantErr string
	}{
		{name: "valid", mutate: func(*email.Message) {}},
		{name: "text only", mutate: func(m *email.Message) { m.HTML = ""; m.Text = "x" }},
		{name: "missing to", mutate: func(m *email.Message) { m.To = " " }, wantErr: "recipient is required"},
		{name: "bad to", mutate: func(m *email.Message) { m.To = "nope" }, wantErr: "not a valid email"},
		{name: "missing subject", mutate: func(m *email.Message) { m.Subject = "" }, wantErr: "subject is required"},
		{name: "missing body", mutate: func(m *email.Message) { m.HTML = "" }, wantErr: "body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, email.ErrInvalidMessage)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := email.NewDevSender(dir)

	id, err := s.Send(context.Background(), email.Message{
		To:      "user@example.com",
		Subject: "Task assigned",
		HTML:    "<p>hello</p>",
		Tag:     "task.assigned",
		Headers: map[string]string{"List-Unsubscribe": "<https://x>"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dev-"))

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, id, env["message_id"])
	assert.Equal(t, "user@example.com", env["to"])

	html, err := os.ReadFile(strings.TrimSuffix(files[0], ".json") + ".html")
	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", string(html))

	_, err = s.Send(context.Background(), email.Message{})
	assert.ErrorIs(t, err, email.ErrInvalidMessage)
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     email.Config
		wantErr bool
	}{
		{name: "dev default", cfg: email.Config{DevDir: t.TempDir()}},
		{name: "postmark", cfg: email.Config{Provider: email.ProviderPostmark, PostmarkServerToken: "t", SenderEmail: "a@example.com"}},
		{name: "postmark missing token", cfg: email.Config{Provider: email.ProviderPostmark, SenderEmail: "a@example.com"}, wantErr: true},
		{name: "resend", cfg: email.Config{Provider: email.ProviderResend, ResendAPIKey: "re_x", SenderEmail: "a@example.com"}},
		{name: "resend bad sender", cfg: email.Config{Provider: email.ProviderResend, ResendAPIKey: "re_x", SenderEmail: "bad"}, wantErr: true},
		{name: "unknown", cfg: email.Config{Provider: "smtp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := email.New(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}
