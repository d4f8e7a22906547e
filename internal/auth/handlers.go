package auth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
)

var errEmailTaken = httpx.NewError(http.StatusConflict, "EMAIL_EXISTS", "email already exists")

type Handlers struct {
	DB       *db.DB
	Secret   []byte
	TokenTTL time.Duration
	Logger   *zap.Logger
}

type User struct {
	ID          int             `json:"user_id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	Profession  string          `json:"profession"`
	Preferences json.RawMessage `json:"preferences"`
	CreatedAt   time.Time       `json:"created_at"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type tokenResponse struct {
	UserID int    `json:"user_id"`
	Token  string `json:"token"`
}

// ------------------------------------------------------------------
// POST /api/auth/register
// ------------------------------------------------------------------

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if body.Email == "" || body.Password == "" {
		httpx.Fail(w, httpx.BadRequest("email & password required"))
		return
	}
	if len(body.Password) < 6 {
		httpx.Fail(w, httpx.BadRequest("password must be at least 6 characters"))
		return
	}

	// check duplicate email
	var exists int
	err := h.DB.QueryRow(r.Context(), `SELECT COUNT(*) FROM users WHERE email = ?`, body.Email).Scan(&exists)
	if err == nil && exists > 0 {
		httpx.Fail(w, errEmailTaken)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	var id int
	err = h.DB.QueryRow(r.Context(), `
		INSERT INTO users (email, password_hash, name, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, body.Email, string(hash), strings.TrimSpace(body.Name), time.Now().UTC()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			httpx.Fail(w, errEmailTaken)
			return
		}
		h.Logger.Error("register insert failed", zap.Error(err))
		httpx.Fail(w, err)
		return
	}

	h.respondToken(w, http.StatusCreated, id)
}

// ------------------------------------------------------------------
// POST /api/auth/login
// ------------------------------------------------------------------

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}

	var (
		id   int
		hash string
	)
	err := h.DB.QueryRow(r.Context(),
		`SELECT id, password_hash FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(body.Email)),
	).Scan(&id, &hash)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)) != nil {
		httpx.Fail(w, httpx.NewError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid login"))
		return
	}

	h.respondToken(w, http.StatusOK, id)
}

// ------------------------------------------------------------------
// GET /api/auth/me
// ------------------------------------------------------------------

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	u, err := h.loadUser(r, uid)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, u)
}

// ------------------------------------------------------------------
// PUT /api/auth/profile
// ------------------------------------------------------------------

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, httpx.ErrUnauthorized)
		return
	}

	var body struct {
		Name        *string         `json:"name"`
		Profession  *string         `json:"profession"`
		Preferences json.RawMessage `json:"preferences"`
	}
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Fail(w, err)
		return
	}

	current, err := h.loadUser(r, uid)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	if body.Name != nil {
		current.Name = strings.TrimSpace(*body.Name)
	}
	if body.Profession != nil {
		current.Profession = strings.TrimSpace(*body.Profession)
	}
	if len(body.Preferences) > 0 {
		var probe map[string]any
		if err := json.Unmarshal(body.Preferences, &probe); err != nil {
			httpx.Fail(w, httpx.BadRequest("preferences must be a json object"))
			return
		}
		current.Preferences = body.Preferences
	}

	_, err = h.DB.Exec(r.Context(), `
		UPDATE users SET name = ?, profession = ?, preferences = ?
		WHERE id = ?
	`, current.Name, current.Profession, string(current.Preferences), uid)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	httpx.OK(w, current)
}

func (h *Handlers) loadUser(r *http.Request, uid int) (*User, error) {
	var (
		u     User
		prefs string
	)
	err := h.DB.QueryRow(r.Context(), `
		SELECT id, email, name, profession, preferences, created_at
		FROM users WHERE id = ?
	`, uid).Scan(&u.ID, &u.Email, &u.Name, &u.Profession, &prefs, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httpx.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	if prefs == "" {
		prefs = "{}"
	}
	u.Preferences = json.RawMessage(prefs)
	return &u, nil
}

func (h *Handlers) respondToken(w http.ResponseWriter, status int, id int) {
	token, err := GenerateToken(h.Secret, id, h.TokenTTL)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, status, tokenResponse{UserID: id, Token: token})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
