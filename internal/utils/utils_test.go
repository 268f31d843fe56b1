package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/models"
)

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Sweep()
	assert.Equal(t, 1, c.Size())

	c.Delete("b")
	assert.Zero(t, c.Size())
}

func TestUserCache_ReturnsCopies(t *testing.T) {
	uc := NewUserCache(time.Minute)
	u := &models.User{ID: 1, Email: "a@example.com", IsStaff: true}
	uc.Set(u)

	got, ok := uc.Get("a@example.com")
	require.True(t, ok)
	got.IsSuperuser = true

	again, ok := uc.Get("a@example.com")
	require.True(t, ok)
	assert.False(t, again.IsSuperuser)

	uc.Invalidate("a@example.com")
	_, ok = uc.Get("a@example.com")
	assert.False(t, ok)
}

func TestValidator(t *testing.T) {
	v := NewValidator().
		ValidateRequired(" ", "Name").
		ValidateLength("abc", "Description", 5, 10).
		ValidateEmail("not-an-email", "Email").
		ValidateQueryHash("XYZ", "Hash").
		ValidateSafeText("a\x00b", "Text")

	assert.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 5)
	assert.Contains(t, v.ErrorString(), "Name is required")

	ok := NewValidator().
		ValidateRequired("signups", "Name").
		ValidateEmail("a@example.com", "Email").
		ValidateQueryHash("0123456789abcdef0123456789abcdef", "Hash")
	assert.False(t, ok.HasErrors())
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello", SanitizeInput("  hel\x00lo  ", 0))
	assert.Equal(t, "héł", SanitizeInput("héłło", 3))
}

func TestRequireAuthentication(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/qbe/pending", nil)
	rec := httptest.NewRecorder()

	_, ok := RequireAuthentication(rec, req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unauthorized", body.Error)

	user := &models.User{ID: 7}
	req = req.WithContext(WithUser(req.Context(), user))
	got, ok := RequireAuthentication(httptest.NewRecorder(), req)
	assert.True(t, ok)
	assert.Equal(t, user, got)
}
