package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"n": 1})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, map[string]any{"n": float64(1)}, env.Data)
}

func TestFail(t *testing.T) {
	t.Run("typed error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Fail(rec, fmt.Errorf("wrapped: %w", NewError(http.StatusConflict, "ALL_ENTRIES_LOCKED", "all entries are locked")))

		assert.Equal(t, http.StatusConflict, rec.Code)
		env := decode(t, rec)
		assert.False(t, env.Success)
		assert.Equal(t, "ALL_ENTRIES_LOCKED", env.ErrorCode)
		assert.Equal(t, "all entries are locked", env.Message)
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Fail(rec, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decode(t, rec)
		assert.Equal(t, "INTERNAL", env.ErrorCode)
		assert.NotContains(t, env.Message, "pq")
	})
}

func TestDecode(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a": 3}`))
	require.NoError(t, Decode(r, &v))
	assert.Equal(t, 3, v.A)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, Decode(r, &v), ErrInvalidJSON)
}
