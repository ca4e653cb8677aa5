package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// expirySlack is subtracted from a token's lifetime so a token is refreshed
// before it can expire mid-request.
const expirySlack = 30 * time.Second

// tokenSource obtains and caches an OAuth2 client-credentials token for the
// platform API. Refreshes are serialized under a mutex so concurrent events
// never stampede the auth endpoint.
type tokenSource struct {
	authURL      string
	clientID     string
	clientSecret string
	scopes       []string
	http         *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(authURL, clientID, clientSecret string, scopes []string, hc *http.Client) *tokenSource {
	return &tokenSource{
		authURL:      strings.TrimRight(authURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		http:         hc,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// token is absent or about to expire.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt) {
		return t.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	if len(t.scopes) > 0 {
		form.Set("scope", strings.Join(t.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.authURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "build token request")
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request token")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if body.AccessToken == "" {
		return "", errors.New("token endpoint returned empty access_token")
	}

	t.token = body.AccessToken
	t.expiresAt = t.now().Add(time.Duration(body.ExpiresIn)*time.Second - expirySlack)
	return t.token, nil
}

// invalidate drops the cached token so the next call fetches a fresh one.
// Called after a 401 from the API.
func (t *tokenSource) invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}
