package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/internal/providers/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenderStreamReady(t *testing.T) {
	subject, body, err := render(TemplateStreamReady, map[string]interface{}{
		"api_key":    "0b6c-key",
		"cancel_url": "https://stream.example.com/cancel/?sessionId=sess_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your streaming server is ready", subject)
	assert.Contains(t, body, "0b6c-key")
	assert.Contains(t, body, "/cancel/?sessionId=sess_1")
}

func TestRenderSubjectOverride(t *testing.T) {
	subject, _, err := render(TemplateStreamReady, map[string]interface{}{"subject": "Welcome"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", subject)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := render("nope", nil)
	assert.Error(t, err)
}

func TestSendGridSend(t *testing.T) {
	var msg struct {
		Personalizations []struct {
			To      []struct{ Email string } `json:"to"`
			Subject string                   `json:"subject"`
		} `json:"personalizations"`
		From    struct{ Email string } `json:"from"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewSendGrid("sg-key", srv.URL, "support@example.com")
	err := p.SendTemplate(context.Background(), []string{"a@b.com"}, TemplateStreamReady, map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)

	require.Len(t, msg.Personalizations, 1)
	assert.Equal(t, "a@b.com", msg.Personalizations[0].To[0].Email)
	assert.Equal(t, "support@example.com", msg.From.Email)
	assert.NotEmpty(t, msg.Personalizations[0].Subject)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "text/html", msg.Content[0].Type)
}

func TestSendGridErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The provided authorization grant is invalid"}]}`))
	}))
	defer srv.Close()

	err := NewSendGrid("bad", srv.URL, "x@example.com").Send(context.Background(), []string{"a@b.com"}, "s", "b")
	require.Error(t, err)
	assert.True(t, httpapi.IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "authorization grant is invalid")

	err = NewSendGrid("", srv.URL, "x@example.com").Send(context.Background(), []string{"a@b.com"}, "s", "b")
	assert.ErrorIs(t, err, ErrSendGridNotConfigured)
}

func TestNewFromConfigSelectsProvider(t *testing.T) {
	cfg := config.Config{Email: config.EmailConfig{Provider: "smtp"}}
	assert.IsType(t, &SMTPProvider{}, NewFromConfig(cfg, zap.NewNop()))

	cfg.Email.Provider = "noop"
	assert.IsType(t, &NoOpProvider{}, NewFromConfig(cfg, zap.NewNop()))

	cfg.Email.Provider = "sendgrid"
	assert.IsType(t, &SendGridProvider{}, NewFromConfig(cfg, zap.NewNop()))
}
