package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
)

type authFixture struct {
	router   http.Handler
	store    *memoryStore
	hasher   *auth.Hasher
	sessions *session.Manager
	audit    *auditSpy
}

type fixtureOptions struct {
	limiter   auth.Limiter
	loginRate int
}

func newAuthFixture(t *testing.T, opts fixtureOptions) *authFixture {
	t.Helper()
	store := newMemoryStore()
	audit := &auditSpy{}
	svc, hasher := newService(t, store, auth.ServiceOptions{Limiter: opts.limiter, Audit: audit})

	sessions, err := session.NewManager(session.Options{
		Secret:      []byte("0123456789abcdef0123456789abcdef"),
		IdleTimeout: time.Hour,
	})
	require.NoError(t, err)
	guard := session.NewGuard(sessions, store, nil, nil)

	handler := auth.NewHandler(nil, svc, sessions, guard, opts.loginRate)
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)

	store.add(t, hasher, "alice", "pw-alice", rbac.OrderRead|rbac.Reports)
	return &authFixture{router: r, store: store, hasher: hasher, sessions: sessions, audit: audit}
}

func (f *authFixture) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range (&http.Response{Header: res.Header()}).Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", session.CookieName)
	return nil
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})

	res := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw-alice"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"username":"alice","permissions":["ORDER_READ","REPORTS"]}`, res.Body.String())

	cookie := sessionCookie(t, res)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Expires.IsZero())

	status := f.do(http.MethodGet, "/auth/status", "", cookie)
	require.Equal(t, http.StatusOK, status.Code)
	assert.JSONEq(t, `{"username":"alice","permissions":["ORDER_READ","REPORTS"]}`, status.Body.String())
}

func TestLoginWithExpiry(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})
	before := time.Now()

	res := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw-alice","expires_in":3600}`)
	require.Equal(t, http.StatusOK, res.Code)
	expires := sessionCookie(t, res).Expires
	assert.WithinDuration(t, before.Add(time.Hour), expires, 2*time.Second)
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})

	wrong := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`)
	unknown := f.do(http.MethodPost, "/auth/login", `{"username":"mallory","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.JSONEq(t, `{"error":"invalid credentials"}`, wrong.Body.String())
	assert.Empty(t, wrong.Header().Values("Set-Cookie"))
	assert.Empty(t, unknown.Header().Values("Set-Cookie"))
}

func TestLoginRejectsMalformedRequests(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})
	cases := map[string]string{
		"not json":           `username=alice`,
		"missing password":   `{"username":"alice"}`,
		"unknown field":      `{"username":"alice","password":"pw-alice","admin":true}`,
		"zero expiry":        `{"username":"alice","password":"pw-alice","expires_in":0}`,
		"negative expiry":    `{"username":"alice","password":"pw-alice","expires_in":-5}`,
		"expiry beyond year": `{"username":"alice","password":"pw-alice","expires_in":31536001}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := f.do(http.MethodPost, "/auth/login", body)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.JSONEq(t, `{"error":"invalid request"}`, res.Body.String())
		})
	}
}

func TestLoginThrottled(t *testing.T) {
	_, client := newRedis(t)
	f := newAuthFixture(t, fixtureOptions{limiter: auth.NewRedisLimiter(client, 1, time.Minute)})

	res := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw-alice"}`)
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.JSONEq(t, `{"error":"too many failed login attempts"}`, res.Body.String())
}

func TestLoginRateLimitedPerIP(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{loginRate: 2})

	for i := 0; i < 2; i++ {
		res := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, res.Code)
	}
	res := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw-alice"}`)
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, res.Body.String())
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})
	login := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw-alice"}`)
	require.Equal(t, http.StatusOK, login.Code)

	res := f.do(http.MethodPost, "/auth/logout", "", sessionCookie(t, login))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.Equal(t, -1, sessionCookie(t, res).MaxAge)
	assert.Contains(t, f.audit.actions(), "auth.logout")
}

func TestLogoutWithoutSession(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})

	res := f.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Empty(t, res.Header().Values("Set-Cookie"))

	res = f.do(http.MethodPost, "/auth/logout", "", &http.Cookie{Name: session.CookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, -1, sessionCookie(t, res).MaxAge)
}

func TestStatusReflectsCurrentPermissions(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})
	login := f.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw-alice"}`)
	require.Equal(t, http.StatusOK, login.Code)

	f.store.setPermissions("alice", rbac.OrderRead)
	res := f.do(http.MethodGet, "/auth/status", "", sessionCookie(t, login))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"username":"alice","permissions":["ORDER_READ"]}`, res.Body.String())
}

func TestStatusRequiresSession(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{})
	res := f.do(http.MethodGet, "/auth/status", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
