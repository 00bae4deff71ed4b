// Package credentials implements the OAuth credential manager: refresh-on-
// expiry with single-flight deduplication and atomic on-disk persistence.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/hllvc/llmproxy/internal/tokenstore"
)

// expirySkew is subtracted from a token's expiry when judging validity, so a
// token that is about to expire mid-request is refreshed early rather than
// handed out and failing upstream.
const expirySkew = 5 * time.Minute

// OAuthError reports a non-retryable refresh failure (invalid_grant,
// invalid_client, ...): credentials are revoked and the caller must
// re-authenticate, not retry.
type OAuthError struct {
	Code    string
	Message string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("credentials: oauth error %s: %s", e.Code, e.Message)
}

// AccountProfile is a cached snapshot of the authenticated account, fetched
// lazily on first use and refreshed after a credential refresh invalidates it.
type AccountProfile struct {
	AccountID string
	Email     string
	FetchedAt time.Time
}

// Manager owns one provider's token lifecycle: it loads a refresh token from
// tokenstore.TokenStore, exchanges it for access tokens via an
// oauth2.Config, and persists rotated refresh tokens atomically.
type Manager struct {
	config oauth2.Config
	store  tokenstore.TokenStore

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	refreshTok  string
	revoked     bool

	profile profileCache

	sf singleflight.Group

	profileFetcher func(ctx context.Context, accessToken string) (*AccountProfile, error)

	// httpClient, when set, refreshes over a provider-specific transport
	// (e.g. a JSON-request encoder for a non-form token endpoint) instead
	// of oauth2's default form-encoded client.
	httpClient *http.Client
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithHTTPClient sets the *http.Client used for refresh requests, letting a
// provider override oauth2's default form-encoded token exchange (e.g. to
// convert it to a JSON body, as Anthropic's token endpoint requires).
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = client }
}

// profileCache guards the cached AccountProfile independently of the token
// fields, since it is invalidated on refresh but read far more often than it
// is written.
type profileCache struct {
	mu sync.RWMutex
	v  *AccountProfile
}

func (p *profileCache) get() *AccountProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v
}

func (p *profileCache) set(v *AccountProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v = v
}

// NewManager constructs a Manager. profileFetcher is optional; when nil,
// Profile always returns nil, false.
func NewManager(config oauth2.Config, store tokenstore.TokenStore, profileFetcher func(ctx context.Context, accessToken string) (*AccountProfile, error), opts ...ManagerOption) *Manager {
	m := &Manager{config: config, store: store, profileFetcher: profileFetcher}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAccessToken returns a valid access token, refreshing it if necessary.
// Concurrent callers during a refresh share its single outcome.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if tok, ok := m.currentValid(); ok {
		return tok, nil
	}

	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		// re-check after acquiring the single-flight slot: another caller
		// may have completed a refresh while we were waiting to enter.
		if tok, ok := m.currentValid(); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) currentValid() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.revoked || m.accessToken == "" {
		return "", false
	}
	if time.Now().Add(expirySkew).After(m.expiresAt) {
		return "", false
	}
	return m.accessToken, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	revoked := m.revoked
	m.mu.RUnlock()
	if revoked {
		return "", &OAuthError{Code: "revoked", Message: "credentials have been revoked; re-authentication required"}
	}

	refreshTok, err := m.loadRefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("credentials: load refresh token: %w", err)
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshTok})
	tok, err := src.Token()
	if err != nil {
		classified := classifyRefreshError(err)
		if IsRevocable(classified) {
			m.mu.Lock()
			m.revoked = true
			m.mu.Unlock()
		}
		return "", classified
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refreshTok {
		if werr := m.store.Write(ctx, tok.RefreshToken); werr != nil {
			return "", fmt.Errorf("credentials: persist refresh token: %w", werr)
		}
	}

	m.mu.Lock()
	m.accessToken = tok.AccessToken
	m.expiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		m.refreshTok = tok.RefreshToken
	}
	m.mu.Unlock()

	m.profile.set(nil) // invalidate cached profile on a credential rotation

	return tok.AccessToken, nil
}

func (m *Manager) loadRefreshToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	cached := m.refreshTok
	m.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}
	tok, err := m.store.Read(ctx)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.refreshTok = tok
	m.mu.Unlock()
	return tok, nil
}

// Profile returns the cached account profile, fetching it on first use.
func (m *Manager) Profile(ctx context.Context) (*AccountProfile, error) {
	if p := m.profile.get(); p != nil {
		return p, nil
	}
	if m.profileFetcher == nil {
		return nil, nil
	}
	accessToken, err := m.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	v, err, _ := m.sf.Do("profile", func() (any, error) {
		if p := m.profile.get(); p != nil {
			return p, nil
		}
		p, err := m.profileFetcher(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		p.FetchedAt = time.Now()
		m.profile.set(p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AccountProfile), nil
}

// Revoke clears in-memory state and removes the persisted refresh token.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	m.revoked = true
	m.accessToken = ""
	m.refreshTok = ""
	m.mu.Unlock()
	m.profile.set(nil)
	return m.store.Delete(ctx)
}

// Exists reports whether the backing token store currently has credentials.
func (m *Manager) Exists(ctx context.Context) bool {
	return m.store.Exists(ctx)
}
