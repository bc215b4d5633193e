package oauth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/errs"
)

func TestPercentEncodeLeavesUnreservedCharsAlone(t *testing.T) {
	require.Equal(t, "abcXYZ019-._~", percentEncode("abcXYZ019-._~"))
}

func TestPercentEncodeEscapesReservedChars(t *testing.T) {
	require.Equal(t, "a%20b%2Fc%3D", percentEncode("a b/c="))
}

func TestBuildSignatureIsStableForSameInputs(t *testing.T) {
	params := map[string]string{"oauth_nonce": "abc", "oauth_timestamp": "100"}
	sig1 := buildSignature(http.MethodGet, "https://example.com/x", params, "consumer-secret", "token-secret")
	sig2 := buildSignature(http.MethodGet, "https://example.com/x", params, "consumer-secret", "token-secret")
	require.Equal(t, sig1, sig2)
}

func TestBuildSignatureChangesWithDifferentTokenSecret(t *testing.T) {
	params := map[string]string{"oauth_nonce": "abc"}
	sig1 := buildSignature(http.MethodGet, "https://example.com/x", params, "consumer-secret", "secret-a")
	sig2 := buildSignature(http.MethodGet, "https://example.com/x", params, "consumer-secret", "secret-b")
	require.NotEqual(t, sig1, sig2)
}

// redirectTransport rewrites every outbound request's scheme and host to
// point at an httptest.Server, so BaseURL's hardcoded E*TRADE hosts can be
// exercised against a local fixture without touching config.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	req.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestManager(t *testing.T, srv *httptest.Server) *Manager {
	t.Helper()
	cfg := &config.Config{
		ETradeSandboxKey:    "ck",
		ETradeSandboxSecret: "cs",
	}
	dir := t.TempDir()
	key, err := loadOrCreateKey(dir)
	require.NoError(t, err)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return &Manager{
		cfg:       cfg,
		key:       key,
		stateDir:  dir,
		authorize: srv.URL + "/authorize",
		http:      &http.Client{Timeout: 5 * time.Second, Transport: redirectTransport{target: target}},
		log:       nil,
		envs:      make(map[config.Environment]*envState),
	}
}

func TestSignRequestFailsWithCredentialsMissingWhenNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	m := newTestManager(t, srv)

	_, err := m.SignRequest(config.Sandbox, http.MethodGet, "https://apisb.etrade.com/v1/accounts/list", nil)
	require.True(t, errs.Is(err, errs.CredentialsMissing))
}

func TestRenewIfNeededRequiresDailyReauthOnStaleIssueDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	m := newTestManager(t, srv)

	orig := nowFunc
	frozen := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = orig }()

	st := m.state(config.Sandbox)
	st.token = &TokenInfo{
		OAuthToken:       "tok",
		OAuthTokenSecret: "sec",
		IssuedETDate:     "2026-03-08",
		LastRenewed:      frozen,
	}

	err := m.RenewIfNeeded(config.Sandbox)
	require.True(t, errs.Is(err, errs.DailyReauthRequired))
}

func TestRenewIfNeededSkipsWhenRecentlyRenewed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("broker should not be contacted when idle time is under the renewal threshold")
	}))
	defer srv.Close()
	m := newTestManager(t, srv)

	orig := nowFunc
	frozen := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = orig }()

	st := m.state(config.Sandbox)
	st.token = &TokenInfo{
		OAuthToken:       "tok",
		OAuthTokenSecret: "sec",
		IssuedETDate:     etDateString(frozen),
		LastRenewed:      frozen.Add(-time.Hour),
	}

	require.NoError(t, m.RenewIfNeeded(config.Sandbox))
}

func TestRenewIfNeededCallsRenewEndpointWhenIdleTooLong(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Contains(t, r.URL.Path, "/oauth/renew_access_token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	m := newTestManager(t, srv)
	m.cfg.ETradeSandboxKey = "ck"
	m.cfg.ETradeSandboxSecret = "cs"

	orig := nowFunc
	frozen := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = orig }()

	st := m.state(config.Sandbox)
	st.token = &TokenInfo{
		OAuthToken:       "tok",
		OAuthTokenSecret: "sec",
		IssuedETDate:     etDateString(frozen),
		LastRenewed:      frozen.Add(-3 * time.Hour),
	}

	require.NoError(t, m.RenewIfNeeded(config.Sandbox))
	require.Equal(t, 1, hits)
	require.Equal(t, 0, st.metrics.ConsecutiveFailures)
}

func TestRenewIfNeededSurfacesTokenInactiveWithoutRetrying(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("token_inactive"))
	}))
	defer srv.Close()
	m := newTestManager(t, srv)

	orig := nowFunc
	frozen := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = orig }()

	st := m.state(config.Sandbox)
	st.token = &TokenInfo{
		OAuthToken:       "tok",
		OAuthTokenSecret: "sec",
		IssuedETDate:     etDateString(frozen),
		LastRenewed:      frozen.Add(-3 * time.Hour),
	}

	err := m.RenewIfNeeded(config.Sandbox)
	require.True(t, errs.Is(err, errs.TokenInactive))
	require.Equal(t, 1, hits)
	require.Equal(t, 1, st.metrics.ConsecutiveFailures)
}

func TestStartExchangesRequestAndAccessTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/request_token":
			w.Write([]byte("oauth_token=reqtok&oauth_token_secret=reqsec"))
		case "/oauth/access_token":
			require.Equal(t, "verifier-123", r.URL.Query().Get("oauth_verifier"))
			w.Write([]byte("oauth_token=acctok&oauth_token_secret=accsec"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	m := newTestManager(t, srv)
	m.cfg.Environment = config.Sandbox

	orig := nowFunc
	frozen := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = orig }()

	var presentedURL string
	err := m.Start(config.Sandbox, func(authURL string) (string, error) {
		presentedURL = authURL
		return "verifier-123", nil
	})
	require.NoError(t, err)
	require.Contains(t, presentedURL, "token=reqtok")

	status := m.Status(config.Sandbox)
	require.True(t, status.HasToken)
	require.Equal(t, etDateString(frozen), status.IssuedETDate)
}

func TestStartFailsWhenOperatorAbortsWithEmptyVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("oauth_token=reqtok&oauth_token_secret=reqsec"))
	}))
	defer srv.Close()
	m := newTestManager(t, srv)

	err := m.Start(config.Sandbox, func(authURL string) (string, error) {
		return "", nil
	})
	require.True(t, errs.Is(err, errs.UserAborted))
}

func TestStartFailsWhenConsumerCredentialsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	m := newTestManager(t, srv)
	m.cfg.ETradeSandboxKey = ""
	m.cfg.ETradeSandboxSecret = ""

	err := m.Start(config.Sandbox, func(authURL string) (string, error) { return "v", nil })
	require.True(t, errs.Is(err, errs.CredentialsMissing))
}

func TestStatusReportsNoTokenForFreshEnvironment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	m := newTestManager(t, srv)

	status := m.Status(config.Sandbox)
	require.False(t, status.HasToken)
}
