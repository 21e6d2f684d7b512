package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
	_ "github.com/odyssey-erp/backoffice/testing"
)

const testSecret = "0123456789abcdef0123456789abcdef-session-secret"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T, clock *fakeClock) *session.Manager {
	t.Helper()
	opts := session.Options{Secret: []byte(testSecret), IdleTimeout: 24 * time.Hour, Secure: true}
	if clock != nil {
		opts.Now = clock.Now
	}
	m, err := session.NewManager(opts)
	require.NoError(t, err)
	return m
}

// responseCookies parses the live header map; Result() would snapshot it.
func responseCookies(res *httptest.ResponseRecorder) []*http.Cookie {
	return (&http.Response{Header: res.Header()}).Cookies()
}

// requestWithCookies replays the cookies set on res into a new request.
func requestWithCookies(res *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range responseCookies(res) {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func authCookies(res *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range responseCookies(res) {
		if c.Name == session.CookieName {
			out = append(out, c)
		}
	}
	return out
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := session.NewManager(session.Options{Secret: []byte("short")})
	require.Error(t, err)
}

func TestIssue(t *testing.T) {
	clock := newFakeClock()
	m := newManager(t, clock)

	tok := m.Issue("alice", rbac.OrderRead, 0)
	assert.Equal(t, "alice", tok.Username)
	assert.Equal(t, rbac.OrderRead, tok.Permissions)
	assert.Nil(t, tok.ExpiresAt)
	assert.NotEmpty(t, tok.ID)

	tok = m.Issue("alice", rbac.OrderRead, time.Hour)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), *tok.ExpiresAt)

	assert.NotEqual(t, tok.ID, m.Issue("alice", rbac.OrderRead, time.Hour).ID)
}

func TestWriteReadRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m := newManager(t, clock)
	tok := m.Issue("alice", rbac.OrderRead|rbac.Reports, time.Hour)

	res := httptest.NewRecorder()
	require.NoError(t, m.Write(res, tok))

	cookies := authCookies(res)
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, *tok.ExpiresAt, c.Expires.Unix())
	assert.NotContains(t, c.Value, "alice", "cookie payload must be encrypted")

	got, err := m.Read(requestWithCookies(res))
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestSessionLengthCookieHasNoExpiry(t *testing.T) {
	m := newManager(t, nil)
	res := httptest.NewRecorder()
	require.NoError(t, m.Write(res, m.Issue("alice", rbac.None, 0)))

	header := res.Header().Get("Set-Cookie")
	assert.NotContains(t, header, "Expires=")
	assert.NotContains(t, header, "Max-Age=")
}

func TestReadWithoutCookie(t *testing.T) {
	m := newManager(t, nil)
	_, err := m.Read(httptest.NewRequest(http.MethodGet, "/", nil))
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestReadRejectsTamperedCookie(t *testing.T) {
	m := newManager(t, nil)
	res := httptest.NewRecorder()
	require.NoError(t, m.Write(res, m.Issue("alice", rbac.OrderRead, 0)))
	value := authCookies(res)[0].Value

	tampered := []byte(value)
	tampered[len(tampered)/2] ^= 0x01
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: string(tampered)})
	_, err := m.Read(req)
	require.ErrorIs(t, err, session.ErrInvalidSession)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: `{"username":"root","permissions":4294967295}`})
	_, err = m.Read(req)
	require.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestReadRejectsCookieFromOtherSecret(t *testing.T) {
	m := newManager(t, nil)
	other, err := session.NewManager(session.Options{Secret: []byte(strings.Repeat("x", 48))})
	require.NoError(t, err)

	res := httptest.NewRecorder()
	require.NoError(t, other.Write(res, other.Issue("alice", rbac.Admin, 0)))
	_, err = m.Read(requestWithCookies(res))
	require.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestReadRejectsExpiredToken(t *testing.T) {
	clock := newFakeClock()
	m := newManager(t, clock)
	res := httptest.NewRecorder()
	require.NoError(t, m.Write(res, m.Issue("alice", rbac.OrderRead, time.Minute)))

	clock.Advance(time.Minute)
	_, err := m.Read(requestWithCookies(res))
	require.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestWriteReplacesEarlierCookie(t *testing.T) {
	m := newManager(t, nil)
	res := httptest.NewRecorder()
	http.SetCookie(res, &http.Cookie{Name: "other", Value: "keep"})

	first := m.Issue("alice", rbac.OrderRead, 0)
	require.NoError(t, m.Write(res, first))
	require.NoError(t, m.Write(res, first.Refreshed(rbac.OrderWrite)))

	require.Len(t, authCookies(res), 1)
	got, err := m.Read(requestWithCookies(res))
	require.NoError(t, err)
	assert.Equal(t, rbac.OrderWrite, got.Permissions)
	assert.Len(t, responseCookies(res), 2)

	m.Clear(res)
	cookies := authCookies(res)
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRefreshedKeepsIdentityAndExpiry(t *testing.T) {
	m := newManager(t, nil)
	tok := m.Issue("alice", rbac.OrderRead, time.Hour)
	refreshed := tok.Refreshed(rbac.OrderWrite)

	assert.Equal(t, tok.ID, refreshed.ID)
	assert.Equal(t, tok.Username, refreshed.Username)
	require.NotNil(t, refreshed.ExpiresAt)
	assert.Equal(t, *tok.ExpiresAt, *refreshed.ExpiresAt)
	assert.Equal(t, rbac.OrderWrite, refreshed.Permissions)
	assert.Equal(t, rbac.OrderRead, tok.Permissions)
}
