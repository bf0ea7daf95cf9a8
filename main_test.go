package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/Zachkp/portfolio/internal/docstore"
	"github.com/Zachkp/portfolio/internal/feed"
	"github.com/Zachkp/portfolio/internal/navigator"
	"github.com/Zachkp/portfolio/internal/projects"
	"github.com/Zachkp/portfolio/internal/site"
	"github.com/Zachkp/portfolio/internal/storage"
)

type harness struct {
	t      *testing.T
	srv    *server
	store  *docstore.Memory
	router *gin.Engine
}

func testConfig(t *testing.T) config.Config {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "resume.pdf"), []byte("%PDF-1.4"), 0o600))
	return config.Config{
		Port:          "0",
		GinMode:       gin.TestMode,
		Docstore:      config.StoreMemory,
		PollInterval:  time.Second,
		StaticDir:     static,
		TemplateGlob:  "templates/*",
		ResumeFormats: []string{"pdf", "docx"},
		Contact: config.Contact{
			RevertDelay:   time.Hour,
			RatePerMinute: 100,
			SessionIdle:   time.Hour,
		},
		Admin:   config.Admin{SessionTTL: time.Hour, JWTSecret: "test-secret", LoginPerMinute: 100},
		Privacy: config.Privacy{Tracking: true, Retention: 24 * time.Hour, Salt: "salt"},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test adjust the config before the server is built.
func newHarnessWith(t *testing.T, adjust func(*config.Config)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := storage.Open(filepath.Join(t.TempDir(), "site.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := docstore.NewMemory()
	store.Replace(feed.Path, map[string]json.RawMessage{
		"-Na": json.RawMessage(`{"title":"Mail TUI","description":"terminal mail","image":"/static/a.png","tags":["go","tui"]}`),
		"-Nb": json.RawMessage(`{"title":"Game Recs","description":"tf-idf","image":"/static/b.png","tags":["python"],"link":"https://example.com"}`),
	})

	cfg := testConfig(t)
	if adjust != nil {
		adjust(&cfg)
	}
	s, err := newServer(cfg, site.Default(), db, store, store)
	require.NoError(t, err)
	t.Cleanup(s.live.Close)
	t.Cleanup(func() {
		if s.tracker != nil {
			s.tracker.Wait()
		}
	})
	return &harness{t: t, srv: s, store: store, router: s.routes()}
}

func (h *harness) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (h *harness) postJSON(path string, body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	require.NoError(h.t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *harness) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, cookies...)
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestIndex(t *testing.T) {
	h := newHarness(t)
	w := h.get("/?section=work&tag=go")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Zach Kordas-Potter")
	assert.Contains(t, body, `data-active="work"`)
	assert.Contains(t, body, "Mail TUI")
	assert.NotContains(t, body, "Game Recs")
	assert.Nil(t, cookieNamed(w, sessionCookie), "viewing the page does not start a contact session")

	w = h.get("/?section=nowhere")
	assert.Contains(t, w.Body.String(), `data-active="home"`)
}

func TestNavScroll(t *testing.T) {
	h := newHarness(t)
	sections := []navigator.Geometry{
		{ID: navigator.Home, Top: 0, Height: 800},
		{ID: navigator.About, Top: 800, Height: 600},
		{ID: navigator.Work, Top: 1400, Height: 900},
	}
	w := h.postJSON("/api/nav/scroll", map[string]any{"active": "home", "scrollY": 750, "sections": sections})
	require.Equal(t, http.StatusOK, w.Code)
	var state navigator.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, navigator.About, state.Active)

	w = h.postJSON("/api/nav/scroll", map[string]any{"active": "work", "scrollY": 99999, "sections": sections})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, navigator.Work, state.Active, "no match keeps the previous section")
}

func TestNavGoto(t *testing.T) {
	h := newHarness(t)
	sections := []navigator.Geometry{{ID: navigator.Contact, Top: 3000, Height: 700}}

	w := h.postJSON("/api/nav/goto", map[string]any{"active": "home", "menuOpen": true, "target": "contact", "sections": sections})
	require.Equal(t, http.StatusOK, w.Code)
	var res gotoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Scroll)
	assert.Equal(t, 2920.0, res.Top)
	assert.Equal(t, navigator.Contact, res.Active)
	assert.False(t, res.MenuOpen)

	w = h.postJSON("/api/nav/goto", map[string]any{"active": "about", "menuOpen": true, "target": "work", "sections": sections})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Scroll)
	assert.Equal(t, navigator.About, res.Active)
	assert.False(t, res.MenuOpen)

	w = h.postJSON("/api/nav/menu", map[string]any{"active": "about"})
	var state navigator.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.MenuOpen)

	w = h.do(httptest.NewRequest(http.MethodPost, "/api/nav/goto", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectsAPI(t *testing.T) {
	h := newHarness(t)
	w := h.get("/api/projects?tag=python")
	require.Equal(t, http.StatusOK, w.Code)
	var g gallery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.True(t, g.Loaded)
	assert.Equal(t, "python", g.Selection)
	assert.Equal(t, []string{"go", "tui", "python"}, g.Tags)
	require.Len(t, g.Projects, 1)
	assert.Equal(t, "-Nb", g.Projects[0].ID)

	w = h.get("/api/projects")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, "all", g.Selection)
	assert.Len(t, g.Projects, 2)

	w = h.get("/api/projects?tag=rust")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.NotNil(t, g.Projects)
	assert.Empty(t, g.Projects)
}

func TestProjectPages(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusOK, h.get("/projects?tag=go").Code)

	w := h.get("/projects/-Nb")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Game Recs")

	assert.Equal(t, http.StatusNotFound, h.get("/projects/-Nz").Code)
}

func TestProjectsFollowStore(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Remove(context.Background(), feed.Path, "-Na"))

	var g gallery
	require.NoError(t, json.Unmarshal(h.get("/api/projects").Body.Bytes(), &g))
	require.Len(t, g.Projects, 1)
	assert.Equal(t, "-Nb", g.Projects[0].ID)
}

func TestContactSubmit(t *testing.T) {
	h := newHarness(t)
	first := h.get("/contact-form")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Nil(t, cookieNamed(first, sessionCookie))
	assert.Contains(t, first.Body.String(), `hx-disabled-elt="find button"`)

	w := h.postForm("/contact", url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "subject": {"Hi"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `value="Ada"`)
	session := cookieNamed(w, sessionCookie)
	require.NotNil(t, session)
	assert.Equal(t, 1, h.srv.sessions.Len())

	w = h.postForm("/contact", url.Values{
		"name": {"Ada"}, "email": {"ada@example.com"}, "subject": {"Hi"}, "message": {"Hello there"},
	}, session)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, strings.Count(w.Body.String(), "Message sent successfully!"))
	assert.NotContains(t, w.Body.String(), "Hello there")

	status := h.get("/contact/status", session)
	assert.Contains(t, status.Body.String(), `data-status="success"`)

	n, err := h.srv.archive.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPageViewsDoNotCreateSessions(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 200; i++ {
		require.Equal(t, http.StatusOK, h.get("/").Code)
	}
	stranger := &http.Cookie{Name: sessionCookie, Value: contact.NewID()}
	assert.Equal(t, http.StatusOK, h.get("/contact-form", stranger).Code)
	w := h.get("/contact/status", stranger)
	assert.Contains(t, w.Body.String(), `data-status="idle"`)
	assert.Equal(t, 0, h.srv.sessions.Len())
}

func TestContactAPI(t *testing.T) {
	h := newHarness(t)
	w := h.do(httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.postJSON("/api/contact", map[string]string{"name": "Ada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.postJSON("/api/contact", map[string]string{"name": "Ada", "email": "a@b", "subject": "S", "message": "M"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResume(t *testing.T) {
	h := newHarness(t)
	w := h.get("/resume/pdf")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Zach_Kordas-Potter_Resume.pdf")

	assert.Equal(t, http.StatusNotFound, h.get("/resume/docx").Code)
	assert.Equal(t, http.StatusNotFound, h.get("/resume/exe").Code)
}

func TestProjectsSocket(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/projects?tag=go", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame socketFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "go", frame.Selection)
	require.Len(t, frame.Projects, 1)

	require.NoError(t, h.store.Put(context.Background(), feed.Path, "-Nc",
		json.RawMessage(`{"title":"Site","tags":["go"]}`)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Len(t, frame.Projects, 2)

	require.NoError(t, conn.WriteJSON(socketFilter{Tag: "python"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "python", frame.Selection)
	require.Len(t, frame.Projects, 1)
	assert.Equal(t, "-Nb", frame.Projects[0].ID)
}

func TestProjectsSocket_ReleasesSubscription(t *testing.T) {
	h := newHarness(t)
	base := h.store.Listeners()
	ts := httptest.NewServer(h.router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/projects", nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame socketFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, base+1, h.store.Listeners())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.store.Listeners() == base },
		5*time.Second, 10*time.Millisecond)
}

// brokenConn fails every write and blocks reads until closed.
type brokenConn struct {
	writes    int
	listeners []int
	store     *docstore.Memory
	closed    chan struct{}
}

func (b *brokenConn) ReadJSON(any) error {
	<-b.closed
	return errors.New("closed")
}

func (b *brokenConn) WriteJSON(any) error {
	b.writes++
	b.listeners = append(b.listeners, b.store.Listeners())
	return errors.New("broken pipe")
}

func TestStreamProjects_WriteErrorReleasesSubscription(t *testing.T) {
	h := newHarness(t)
	base := h.store.Listeners()
	conn := &brokenConn{store: h.store, closed: make(chan struct{})}
	defer close(conn.closed)

	require.NoError(t, h.srv.streamProjects(context.Background(), conn, "go"))
	assert.Equal(t, 1, conn.writes)
	assert.Equal(t, []int{base + 1}, conn.listeners)
	assert.Equal(t, base, h.store.Listeners())
}

func TestStreamProjects_ContextDoneReleasesSubscription(t *testing.T) {
	h := newHarness(t)
	base := h.store.Listeners()
	conn := &brokenConn{store: h.store, closed: make(chan struct{})}
	defer close(conn.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.srv.streamProjects(ctx, conn, ""))
	assert.Equal(t, base, h.store.Listeners())
}

func TestLatestKeepsNewest(t *testing.T) {
	box := newLatest()
	_, ok := box.take()
	assert.False(t, ok, "nothing to send before the first list")

	box.setList([]projects.Project{{ID: "a", Tags: []string{"go"}}})
	box.setList([]projects.Project{{ID: "b", Tags: []string{"go"}}})
	box.setFilter("go")
	frame, ok := box.take()
	require.True(t, ok)
	require.Len(t, frame.Projects, 1)
	assert.Equal(t, "b", frame.Projects[0].ID)
	_, ok = box.take()
	assert.False(t, ok)
}
