package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// memStore is an in-memory TokenStore fake for tests.
type memStore struct {
	mu    sync.Mutex
	token string
	has   bool
}

func newMemStore(initial string) *memStore {
	return &memStore{token: initial, has: initial != ""}
}

func (s *memStore) Read(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return "", assert.AnError
	}
	return s.token, nil
}

func (s *memStore) Write(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.has = token, true
	return nil
}

func (s *memStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.has = "", false
	return nil
}

func (s *memStore) Exists(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.has
}

func newTestConfig(tokenURL string) oauth2.Config {
	return oauth2.Config{
		ClientID: "test-client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
}

func TestManager_RefreshesOnceUnderConcurrentCallers(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`))
	}))
	defer server.Close()

	store := newMemStore("rt-0")
	mgr := NewManager(newTestConfig(server.URL), store, nil)

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := mgr.GetAccessToken(context.Background())
			require.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "at-1", r)
	}
	assert.Equal(t, int32(1), requests.Load(), "concurrent callers must share a single refresh")
}

func TestManager_ReusesValidTokenWithoutRefreshing(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`))
	}))
	defer server.Close()

	mgr := NewManager(newTestConfig(server.URL), newMemStore("rt-0"), nil)

	tok1, err := mgr.GetAccessToken(context.Background())
	require.NoError(t, err)
	tok2, err := mgr.GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(1), requests.Load())
}

func TestManager_RefreshesAgainAfterExpirySkew(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":1}`))
		} else {
			_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","expires_in":3600}`))
		}
	}))
	defer server.Close()

	store := newMemStore("rt-0")
	mgr := NewManager(newTestConfig(server.URL), store, nil)

	tok1, err := mgr.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok1)

	// force the cached token to be treated as within the expiry skew window
	mgr.mu.Lock()
	mgr.expiresAt = time.Now()
	mgr.mu.Unlock()

	tok2, err := mgr.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok2)
	assert.Equal(t, int32(2), requests.Load())
}

func TestManager_FourXXRevokesAndDoesNotRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"token expired"}`))
	}))
	defer server.Close()

	store := newMemStore("rt-0")
	mgr := NewManager(newTestConfig(server.URL), store, nil)

	_, err := mgr.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, IsRevocable(err))

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "invalid_grant", oauthErr.Code)
}

func TestManager_FiveXXIsRetryableWithoutRevocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`upstream unavailable`))
	}))
	defer server.Close()

	mgr := NewManager(newTestConfig(server.URL), newMemStore("rt-0"), nil)

	_, err := mgr.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.False(t, IsRevocable(err))

	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
}

func TestManager_RevokeClearsStateAndDeletesStore(t *testing.T) {
	store := newMemStore("rt-0")
	mgr := NewManager(newTestConfig("http://unused.invalid"), store, nil)
	mgr.mu.Lock()
	mgr.accessToken = "at-cached"
	mgr.expiresAt = time.Now().Add(time.Hour)
	mgr.mu.Unlock()

	require.NoError(t, mgr.Revoke(context.Background()))

	assert.False(t, mgr.Exists(context.Background()))
	_, ok := mgr.currentValid()
	assert.False(t, ok)
}

func TestManager_ProfileIsCachedAndInvalidatedOnRevoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`))
	}))
	defer server.Close()

	var fetches atomic.Int32
	fetcher := func(ctx context.Context, accessToken string) (*AccountProfile, error) {
		fetches.Add(1)
		return &AccountProfile{AccountID: "acct-" + accessToken}, nil
	}

	mgr := NewManager(newTestConfig(server.URL), newMemStore("rt-0"), fetcher)

	p1, err := mgr.Profile(context.Background())
	require.NoError(t, err)
	p2, err := mgr.Profile(context.Background())
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, int32(1), fetches.Load())

	require.NoError(t, mgr.Revoke(context.Background()))
	assert.Nil(t, mgr.profile.get())
}
