package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text string `json:"text"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("accepts small body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`))
		var n note
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &n))
		assert.Equal(t, "hi", n.Text)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi","extra":1}`))
		var n note
		require.Error(t, DecodeJSON(httptest.NewRecorder(), r, &n))
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		body := `{"text":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var n note
		err := DecodeJSON(httptest.NewRecorder(), r, &n)
		var tooLarge *http.MaxBytesError
		require.True(t, errors.As(err, &tooLarge), "got %v", err)
		assert.Equal(t, int64(MaxBodyBytes), tooLarge.Limit)
	})
}

func TestErrorWritesShortMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusTooManyRequests, MsgRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rr.Body.String())
}
