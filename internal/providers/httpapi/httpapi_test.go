package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoDecodesAndSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "a", r.URL.Query().Get("name"))
		_, _ = w.Write([]byte(`{"id":"z1"}`))
	}))
	defer srv.Close()

	c := New("test", srv.URL+"/")
	var out struct {
		ID string `json:"id"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/zones",
		Query:  map[string][]string{"name": {"a"}},
		Token:  "tok",
		Out:    &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "z1", out.ID)
}

func TestDoWrapsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"bad token"}`))
	}))
	defer srv.Close()

	c := New("test", srv.URL)
	c.ErrorMessage = func([]byte) string { return "bad token" }

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "bad token")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "provider_test", apiErr.Reason())
}

func TestDoSendsFormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_1", r.PostForm.Get("line_items[0][price]"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New("test", srv.URL).Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/v1/checkout/sessions",
		Form:   map[string][]string{"mode": {"subscription"}, "line_items[0][price]": {"price_1"}},
		Body:   map[string]string{"ignored": "yes"},
	})
	require.NoError(t, err)
}
