package router

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliu/ponyexpress/internal/api"
	"github.com/pliu/ponyexpress/internal/auth"
	"github.com/pliu/ponyexpress/internal/handlers"
	"github.com/pliu/ponyexpress/internal/query"
	"github.com/pliu/ponyexpress/internal/session"
	"github.com/pliu/ponyexpress/internal/store/sqlstore"
	"github.com/pliu/ponyexpress/internal/views"
)

type testEnv struct {
	api      *fakeAPI
	app      *httptest.Server
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeAPI()
	apiSrv := httptest.NewServer(fake.handler())
	t.Cleanup(apiSrv.Close)

	reg := prometheus.NewRegistry()
	client := api.New(apiSrv.URL, api.WithMetrics(api.NewMetrics(reg)))

	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	sealer, err := auth.NewSealer("test-secret")
	require.NoError(t, err)
	svc := auth.NewService(client, st, sealer, zerolog.Nop())

	sessions := session.NewManager(client, query.Config{
		StaleTime: time.Minute,
		GCTime:    time.Hour,
		Metrics:   query.NewMetrics(reg),
	}, time.Hour, zerolog.Nop())
	t.Cleanup(sessions.Close)

	renderer, err := views.New()
	require.NoError(t, err)

	base := &handlers.Base{
		Views:      renderer,
		Sessions:   sessions,
		Auth:       svc,
		Cookies:    auth.Cookies{Name: "pony_session", Signer: auth.NewSigner("test-secret")},
		RenderWait: 2 * time.Second,
		Log:        zerolog.Nop(),
	}
	h := New(Config{
		Auth:     &handlers.AuthHandler{Base: base},
		Chat:     &handlers.ChatHandler{Base: base, API: client, PollInterval: 10 * time.Second},
		Resolver: svc,
		Log:      zerolog.Nop(),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	app := httptest.NewServer(h)
	t.Cleanup(app.Close)

	return &testEnv{api: fake, app: app, sessions: sessions}
}

// browser follows redirects and keeps cookies like a real one.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (e *testEnv) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: e.app.URL, client: &http.Client{Jar: jar}}
}

type page struct {
	status int
	path   string
	body   string
}

func (b *browser) read(resp *http.Response, err error) page {
	b.t.Helper()
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return page{status: resp.StatusCode, path: resp.Request.URL.Path, body: string(body)}
}

func (b *browser) get(path string) page {
	b.t.Helper()
	return b.read(b.client.Get(b.base + path))
}

func (b *browser) post(path string, form url.Values) page {
	b.t.Helper()
	return b.read(b.client.PostForm(b.base+path, form))
}

func (b *browser) login(username string) page {
	b.t.Helper()
	p := b.post("/login", url.Values{"username": {username}, "password": {"password"}})
	require.Equal(b.t, http.StatusOK, p.status)
	require.Equal(b.t, "/", p.path)
	return p
}

func TestUnauthenticatedPaths(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	home := b.get("/")
	assert.Equal(t, "/", home.path)
	assert.Contains(t, home.body, "welcome to pony express!")
	assert.Contains(t, home.body, `href="/login"`)

	for _, path := range []string{"/chats", "/chats/1", "/chats/1/details", "/profile", "/chats/new", "/nope"} {
		p := b.get(path)
		assert.Equal(t, "/login", p.path, path)
	}

	reg := b.get("/register")
	assert.Equal(t, "/register", reg.path)
	assert.Contains(t, reg.body, `name="email"`)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	p := b.post("/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, p.status)
	assert.Contains(t, p.body, "invalid username or password")
	assert.Equal(t, 0, env.sessions.Len())

	p = b.get("/chats")
	assert.Equal(t, "/login", p.path)
}

func TestLoginShowsChats(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	p := b.login("alice")
	assert.Contains(t, p.body, "select a chat")
	assert.Contains(t, p.body, "general")
	assert.Contains(t, p.body, "random")
	assert.Contains(t, p.body, `href="/profile"`)
	assert.Contains(t, p.body, ">alice<")

	p = b.get("/login")
	assert.Equal(t, "/error/404", p.path)
	assert.Equal(t, http.StatusNotFound, p.status)
	assert.Contains(t, p.body, "404: Not Found")
}

func TestEmptyChatShowsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/chats/2")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "no messages have been sent yet")
	assert.NotContains(t, p.body, "loading...")
	assert.Contains(t, p.body, "» random")
	assert.Contains(t, p.body, `content="10"`)
}

func TestMissingChatShowsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/chats/99")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "no messages have been sent yet")
}

func TestChatSearch(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/chats?q=gn")
	assert.Contains(t, p.body, `href="/chats/1"`)
	assert.Contains(t, p.body, `href="/chats/3"`)
	assert.NotContains(t, p.body, `href="/chats/2"`)

	p = b.get("/chats?q=")
	for _, id := range []string{"1", "2", "3"} {
		assert.Contains(t, p.body, `href="/chats/`+id+`"`)
	}
}

func TestMessageControlsOnlyForAuthor(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/chats/1")
	assert.Contains(t, p.body, "hi from alice")
	assert.Contains(t, p.body, "hi from bob")
	assert.Contains(t, p.body, "/chats/1/messages/1/edit")
	assert.Contains(t, p.body, "/chats/1/messages/1/delete")
	assert.NotContains(t, p.body, "/chats/1/messages/2/edit")
	assert.NotContains(t, p.body, "/chats/1/messages/2/delete")

	bob := env.browser(t)
	bob.login("bob")
	p = bob.get("/chats/1")
	assert.NotContains(t, p.body, "/chats/1/messages/1/edit")
	assert.Contains(t, p.body, "/chats/1/messages/2/edit")
}

func TestOwnerControls(t *testing.T) {
	env := newTestEnv(t)

	alice := env.browser(t)
	alice.login("alice")
	p := alice.get("/chats/1/details")
	assert.Contains(t, p.body, "current chat: general")
	assert.Contains(t, p.body, `<button class="btn" type="submit">update</button>`)
	assert.Contains(t, p.body, `<button class="btn" type="submit">remove</button>`)
	assert.Contains(t, p.body, `<button class="btn" type="button" disabled>owner</button>`)
	assert.Contains(t, p.body, "add a user")
	assert.Contains(t, p.body, `<option value="3">carol</option>`)
	assert.NotContains(t, p.body, `<option value="2">bob</option>`)

	bob := env.browser(t)
	bob.login("bob")
	p = bob.get("/chats/1/details")
	assert.Contains(t, p.body, `<button class="btn" type="submit" disabled>update</button>`)
	assert.Contains(t, p.body, `<button class="btn" type="submit" disabled hidden>remove</button>`)
	assert.NotContains(t, p.body, "add a user")
}

func TestCreateChat(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/chats/new")
	assert.Contains(t, p.body, "create a new chat")

	p = b.post("/chats/new", url.Values{"name": {"Team"}})
	assert.Equal(t, "/chats/4/details", p.path)
	assert.Contains(t, p.body, "current chat: Team")

	p = b.get("/chats")
	assert.Contains(t, p.body, `<a href="/chats/4" class="chat-link">Team</a>`)

	p = b.post("/chats/new", url.Values{"name": {"  "}})
	assert.Equal(t, http.StatusBadRequest, p.status)
	assert.Contains(t, p.body, "chat name is required")
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	b.get("/chats/1")
	before := env.api.count("GET /chats")

	p := b.post("/chats/1/messages", url.Values{"text": {"hello"}})
	assert.Equal(t, "/chats/1", p.path)
	assert.Contains(t, p.body, "hello")
	assert.Equal(t, before+1, env.api.count("GET /chats"), "chat list refetched after invalidation")

	start := strings.Index(p.body, "hello")
	require.Greater(t, start, 0)
	assert.Contains(t, p.body[:start], `<span class="username">alice</span>`)
}

func TestCachedReadsAreReused(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	b.get("/chats/1")
	b.get("/chats/1")
	assert.Equal(t, 1, env.api.count("GET /chats/1/messages"))
	assert.Equal(t, 1, env.api.count("GET /users/me"))
}

func TestEditMessage(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/chats/1/messages/1/edit")
	assert.Contains(t, p.body, `action="/chats/1/messages/1/edit"`)
	assert.Contains(t, p.body, `value="hi from alice"`)

	p = b.post("/chats/1/messages/1/edit", url.Values{"text": {"edited text"}})
	assert.Equal(t, "/chats/1", p.path)
	assert.Contains(t, p.body, "edited text")
	assert.NotContains(t, p.body, "hi from alice")
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	b.get("/chats/1")
	p := b.post("/chats/1/messages/1/delete", nil)
	assert.Equal(t, "/chats/1", p.path)
	assert.NotContains(t, p.body, "hi from alice")
	assert.Contains(t, p.body, "hi from bob")
}

func TestMembership(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	b.get("/chats/1/details")
	p := b.post("/chats/1/users", url.Values{"user_id": {"3"}})
	assert.Equal(t, "/chats/1/details", p.path)
	assert.Contains(t, p.body, "<p>carol</p>")
	assert.NotContains(t, p.body, `<option value="3">carol</option>`)

	p = b.post("/chats/1/users/2/remove", nil)
	assert.Equal(t, "/chats/1/details", p.path)
	assert.NotContains(t, p.body, "<p>bob</p>")
	assert.Contains(t, p.body, `<option value="2">bob</option>`)
}

func TestRenameChat(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	b.get("/chats")
	p := b.post("/chats/1/name", url.Values{"name": {"lobby"}})
	assert.Contains(t, p.body, "current chat: lobby")

	p = b.get("/chats")
	assert.Contains(t, p.body, "lobby")

	bob := env.browser(t)
	bob.login("bob")
	bob.post("/chats/1/name", url.Values{"name": {"hijacked"}})
	p = bob.get("/chats/1/details")
	assert.Contains(t, p.body, "current chat: lobby")
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/profile")
	for _, want := range []string{"username:", "alice", "email:", "alice@example.com", "member since:", "Fri Mar 01 2024", "logout"} {
		assert.Contains(t, p.body, want)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")
	require.Equal(t, 1, env.sessions.Len())

	p := b.post("/logout", nil)
	assert.Equal(t, "/login", p.path)
	assert.Equal(t, 0, env.sessions.Len())

	for _, path := range []string{"/chats", "/chats/1", "/chats/1/details", "/profile", "/error/404"} {
		p := b.get(path)
		assert.Equal(t, "/login", p.path, path)
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	p := b.post("/register", url.Values{"username": {"dave"}, "email": {"dave@example.com"}, "password": {"pw"}})
	assert.Equal(t, "/", p.path)
	assert.Contains(t, p.body, ">dave<")

	other := env.browser(t)
	p = other.post("/register", url.Values{"username": {"alice"}, "email": {"a@example.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusUnprocessableEntity, p.status)
	assert.Contains(t, p.body, "User with username alice")
}

func TestRevokedTokenLogsOut(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	env.api.mu.Lock()
	env.api.rejectAll = true
	env.api.mu.Unlock()

	p := b.get("/chats/2")
	assert.Equal(t, "/login", p.path)
	assert.Equal(t, 0, env.sessions.Len())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login("alice")

	p := b.get("/healthz")
	assert.Equal(t, "ok", p.body)

	p = b.get("/metrics")
	assert.Contains(t, p.body, "ponyexpress_api_requests_total")
	assert.Contains(t, p.body, "ponyexpress_query_misses_total")

	p = b.get("/static/app.css")
	assert.Equal(t, http.StatusOK, p.status)
}
