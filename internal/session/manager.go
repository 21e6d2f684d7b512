package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"github.com/odyssey-erp/backoffice/internal/rbac"
)

// CookieName is the cookie carrying the encoded Token.
const CookieName = "auth_info"

// MinSecretLength is the shortest accepted session secret in bytes.
const MinSecretLength = 32

var (
	// ErrNoSession means the request carried no auth cookie.
	ErrNoSession = errors.New("session: no session cookie")
	// ErrInvalidSession means the cookie failed authentication, did not decode
	// into a token, or carried an expiry in the past.
	ErrInvalidSession = errors.New("session: invalid session cookie")
)

// Options configures a Manager.
type Options struct {
	// Secret is the master key; signing and encryption keys are derived from it.
	Secret []byte
	// IdleTimeout bounds how old an encoded cookie may be. Every refresh
	// re-encodes, so this acts as an inactivity limit. Zero disables it.
	IdleTimeout time.Duration
	// Secure sets the Secure cookie attribute.
	Secure bool
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Manager issues, refreshes, reads and clears session tokens stored in an
// encrypted, signed cookie.
type Manager struct {
	codec      *securecookie.SecureCookie
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewManager constructs a Manager.
func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) < MinSecretLength {
		return nil, fmt.Errorf("session: secret must be at least %d bytes", MinSecretLength)
	}
	hashKey, err := deriveKey(opts.Secret, "backoffice session hmac", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(opts.Secret, "backoffice session aes", 32)
	if err != nil {
		return nil, err
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(opts.IdleTimeout / time.Second))

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		codec:      codec,
		cookieName: CookieName,
		secure:     opts.Secure,
		now:        now,
	}, nil
}

// Issue creates a token for a fresh login. A positive expiresIn fixes an
// absolute expiry; zero yields a browser-session token.
func (m *Manager) Issue(username string, perms rbac.Permission, expiresIn time.Duration) Token {
	tok := Token{
		ID:          uuid.NewString(),
		Username:    username,
		Permissions: perms,
	}
	if expiresIn > 0 {
		exp := m.now().Add(expiresIn).Unix()
		tok.ExpiresAt = &exp
	}
	return tok
}

// Read extracts and authenticates the token from the request.
func (m *Manager) Read(r *http.Request) (Token, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return Token{}, ErrNoSession
	}
	var tok Token
	if err := m.codec.Decode(m.cookieName, cookie.Value, &tok); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if tok.ID == "" || tok.Username == "" {
		return Token{}, fmt.Errorf("%w: incomplete token", ErrInvalidSession)
	}
	if tok.Expired(m.now()) {
		return Token{}, fmt.Errorf("%w: expired", ErrInvalidSession)
	}
	return tok, nil
}

// Write encodes tok into the auth cookie, replacing any auth cookie already
// queued on the response.
func (m *Manager) Write(w http.ResponseWriter, tok Token) error {
	value, err := m.codec.Encode(m.cookieName, tok)
	if err != nil {
		return fmt.Errorf("session: encode token: %w", err)
	}
	cookie := m.cookie(value)
	if exp, ok := tok.Expiry(); ok {
		cookie.Expires = exp
	}
	setCookie(w, cookie)
	return nil
}

// Clear expires the auth cookie on the client.
func (m *Manager) Clear(w http.ResponseWriter) {
	cookie := m.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	setCookie(w, cookie)
}

// CookieName returns the cookie identifier used for sessions.
func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// setCookie drops earlier Set-Cookie headers for the same name so the client
// only ever receives the latest value.
func setCookie(w http.ResponseWriter, cookie *http.Cookie) {
	header := w.Header()
	prefix := cookie.Name + "="
	existing := header.Values("Set-Cookie")
	kept := make([]string, 0, len(existing)+1)
	for _, v := range existing {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	if v := cookie.String(); v != "" {
		kept = append(kept, v)
	}
	header["Set-Cookie"] = kept
}

func deriveKey(secret []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return key, nil
}
