package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Zachkp/portfolio/internal/config"
)

func (h *harness) login() *http.Cookie {
	h.t.Helper()
	w := h.postForm("/admin/login", url.Values{"password": {h.srv.admin.token}})
	require.Equal(h.t, http.StatusFound, w.Code)
	c := cookieNamed(w, adminCookie)
	require.NotNil(h.t, c)
	return c
}

func TestAdmin_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	w := h.get("/admin/dashboard")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	w = h.postForm("/admin/login", url.Values{"password": {"guess"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, cookieNamed(w, adminCookie))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   adminSubject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	w = h.get("/admin/dashboard", &http.Cookie{Name: adminCookie, Value: forged})
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestAdmin_LoginHasItsOwnRateLimit(t *testing.T) {
	h := newHarnessWith(t, func(cfg *config.Config) {
		cfg.Contact.RatePerMinute = 1
		cfg.Admin.LoginPerMinute = 2
	})
	form := url.Values{"name": {"Ada"}, "email": {"a@b"}, "subject": {"S"}, "message": {"M"}}
	assert.Equal(t, http.StatusOK, h.postForm("/contact", form).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.postForm("/contact", form).Code)

	// Contact posts did not use up login attempts.
	h.login()
	assert.Equal(t, http.StatusUnauthorized, h.postForm("/admin/login", url.Values{"password": {"guess"}}).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.postForm("/admin/login", url.Values{"password": {"guess"}}).Code)

	// And a disabled contact limit leaves login throttled.
	h = newHarnessWith(t, func(cfg *config.Config) {
		cfg.Contact.RatePerMinute = 0
		cfg.Admin.LoginPerMinute = 1
	})
	assert.Equal(t, http.StatusUnauthorized, h.postForm("/admin/login", url.Values{"password": {"guess"}}).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.postForm("/admin/login", url.Values{"password": {"guess"}}).Code)
}

func TestAdmin_Dashboard(t *testing.T) {
	h := newHarness(t)
	session := h.login()

	assert.Equal(t, http.StatusOK, h.get("/admin/dashboard", session).Code)

	w := h.get("/admin/api/stats", session)
	require.Equal(t, http.StatusOK, w.Code)
	var stats AdminStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalProjects)
	assert.True(t, stats.ProjectsLoaded)
	assert.False(t, stats.ReadOnly)
	assert.Zero(t, stats.ContactSessions, "page views and logins hold no contact sessions")
	assert.NotNil(t, stats.Visitors)

	w = h.get("/admin/export/stats", session)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "admin-stats.json")

	assert.Equal(t, http.StatusOK, h.get("/admin/messages", session).Code)
	assert.Equal(t, http.StatusOK, h.get("/admin/visitors", session).Code)
	w = h.get("/admin/export/messages", session)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestAdmin_ProjectCRUD(t *testing.T) {
	h := newHarness(t)
	session := h.login()

	w := h.postForm("/admin/projects", url.Values{"title": {"  "}}, session)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.postForm("/admin/projects", url.Values{
		"title": {"Portfolio"}, "description": {"this site"}, "tags": {"go, htmx,, "},
	}, session)
	require.Equal(t, http.StatusSeeOther, w.Code)

	list, _ := h.srv.live.Projects()
	require.Len(t, list, 3)
	var created string
	for _, p := range list {
		if p.Title == "Portfolio" {
			created = p.ID
			assert.Equal(t, []string{"go", "htmx"}, p.Tags)
		}
	}
	require.NotEmpty(t, created)

	req := httptest.NewRequest(http.MethodDelete, "/admin/projects/"+created, nil)
	assert.Equal(t, http.StatusOK, h.do(req, session).Code)
	req = httptest.NewRequest(http.MethodDelete, "/admin/projects/"+created, nil)
	assert.Equal(t, http.StatusNotFound, h.do(req, session).Code)

	list, _ = h.srv.live.Projects()
	assert.Len(t, list, 2)
}

func TestAdmin_ReadOnlyStore(t *testing.T) {
	h := newHarness(t)
	h.srv.writer = nil
	session := h.login()

	w := h.postForm("/admin/projects", url.Values{"title": {"X"}}, session)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	req := httptest.NewRequest(http.MethodDelete, "/admin/projects/-Na", nil)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(req, session).Code)

	list, _ := h.srv.live.Projects()
	assert.Len(t, list, 2)
}

func TestAdminAuth_PasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := newAdminAuth(config.Admin{PasswordHash: string(hash), SessionTTL: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, a.token)
	assert.True(t, a.checkPassword("hunter2"))
	assert.False(t, a.checkPassword("hunter3"))

	_, err = newAdminAuth(config.Admin{PasswordHash: "plaintext", SessionTTL: time.Minute})
	assert.Error(t, err)
}

func TestAdminAuth_Expiry(t *testing.T) {
	a, err := newAdminAuth(config.Admin{JWTSecret: "s", SessionTTL: time.Minute})
	require.NoError(t, err)
	now := time.Now()
	a.now = func() time.Time { return now }
	token, err := a.issue()
	require.NoError(t, err)
	require.NoError(t, a.verify(token))

	a.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Error(t, a.verify(token))
	assert.Error(t, a.verify(""))
}
