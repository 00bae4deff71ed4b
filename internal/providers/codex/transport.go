package codex

import "net/http"

// APIKeyTransport attaches a static bearer token to every request, the
// static-key counterpart to claude_api's oauth2-refreshed credentials.
// Manager. No impersonation or body rewriting: Codex's upstream accepts
// plain OpenAI-shaped Chat Completions requests.
type APIKeyTransport struct {
	Base   http.RoundTripper
	APIKey string
}

var _ http.RoundTripper = (*APIKeyTransport)(nil)

func (t *APIKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.APIKey == "" {
		return base.RoundTrip(req)
	}
	newReq := req.Clone(req.Context())
	newReq.Header.Set("Authorization", "Bearer "+t.APIKey)
	return base.RoundTrip(newReq)
}
