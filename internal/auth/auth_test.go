package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schedule-management-backend/internal/db/dbtest"
	"schedule-management-backend/internal/httpx"
)

var testSecret = []byte("test-secret")

func TestToken_RoundTrip(t *testing.T) {
	tok, err := GenerateToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	uid, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, 42, uid)

	_, err = ParseToken([]byte("other"), tok)
	assert.Error(t, err)

	expired, err := GenerateToken(testSecret, 42, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.Error(t, err)
}

func TestMiddleware_Wrap(t *testing.T) {
	m := New(testSecret)
	h := m.Wrap(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		httpx.OK(w, uid)
	})

	tok, err := GenerateToken(testSecret, 7, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, r)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestRegisterLoginMe(t *testing.T) {
	h := &Handlers{DB: dbtest.Open(t), Secret: testSecret, TokenTTL: time.Hour, Logger: zap.NewNop()}

	rec := post(h.Register, `{"email":"Lan@Example.com","password":"secret1","name":"Lan"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = post(h.Register, `{"email":"lan@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(h.Register, `{"email":"short@example.com","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Login, `{"email":"lan@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.Login, `{"email":"lan@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data tokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotEmpty(t, env.Data.Token)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+env.Data.Token)
	rec = httptest.NewRecorder()
	New(testSecret).Wrap(h.Me)(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		Data User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "lan@example.com", me.Data.Email)
	assert.Equal(t, "Lan", me.Data.Name)
	assert.JSONEq(t, `{}`, string(me.Data.Preferences))
}

func TestUpdateProfile(t *testing.T) {
	database := dbtest.Open(t)
	uid := dbtest.CreateUser(t, database, "p@example.com")
	h := &Handlers{DB: database, Secret: testSecret, TokenTTL: time.Hour, Logger: zap.NewNop()}

	do := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
		r = r.WithContext(WithUserID(r.Context(), uid))
		rec := httptest.NewRecorder()
		h.UpdateProfile(rec, r)
		return rec
	}

	rec := do(`{"profession":"student","preferences":{"notifications":{"email":false}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Data User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "student", out.Data.Profession)
	assert.JSONEq(t, `{"notifications":{"email":false}}`, string(out.Data.Preferences))

	assert.Equal(t, http.StatusBadRequest, do(`{"preferences":[1,2]}`).Code)
}

func TestDeleteAccount(t *testing.T) {
	database := dbtest.Open(t)
	uid := dbtest.CreateUser(t, database, "gone@example.com")
	h := &Handlers{DB: database, Secret: testSecret, TokenTTL: time.Hour, Logger: zap.NewNop()}

	r := httptest.NewRequest(http.MethodDelete, "/", nil)
	r = r.WithContext(WithUserID(r.Context(), uid))
	rec := httptest.NewRecorder()
	h.DeleteAccount(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var n int
	require.NoError(t, database.QueryRow(r.Context(), `SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 0, n)
}
