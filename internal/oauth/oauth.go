// Package oauth implements the OAuth 1.0a session manager: three-legged
// authorization, encrypted token storage, idle renewal, signed-request
// minting, and a per-environment keep-alive loop.
package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // required by OAuth 1.0a / RFC 5849
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/errs"
	"github.com/steinwealth/easyorb/internal/logger"
)

// nowFunc is indirected so tests can freeze time.
var nowFunc = time.Now

var etLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}()

func etDateString(t time.Time) string { return t.In(etLoc).Format("2006-01-02") }

func nextMidnightET(t time.Time) time.Time {
	et := t.In(etLoc)
	y, m, d := et.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, etLoc)
}

// TokenInfo is the per-environment access token. OAuthToken
// and OAuthTokenSecret are held in plaintext only in memory; on disk they
// are always encrypted.
type TokenInfo struct {
	OAuthToken       string    `json:"oauth_token"`
	OAuthTokenSecret string    `json:"oauth_token_secret"`
	CreatedAt        time.Time `json:"created_at"`
	LastUsed         time.Time `json:"last_used"`
	LastRenewed      time.Time `json:"last_renewed"`
	ExpiresAt        time.Time `json:"expires_at"`
	IssuedETDate     string    `json:"issued_et_date"`
}

// Metrics is the operational counters surfaced by Status.
type Metrics struct {
	RenewAttempts       int       `json:"renew_attempts"`
	RenewFailures       int       `json:"renew_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Last401Count        int       `json:"last_401_count"`
	LastSuccessfulCall  time.Time `json:"last_successful_call"`
	NextMidnightET      time.Time `json:"next_midnight_et"`
}

// envState bundles the mutable, lock-protected state for one environment.
type envState struct {
	mu      sync.Mutex
	token   *TokenInfo
	metrics Metrics
}

// Manager owns all OAuth 1.0a operations for every configured environment.
// Safe for concurrent use; each environment is serialized by its own lock.
type Manager struct {
	cfg       *config.Config
	key       *[32]byte
	stateDir  string
	authorize string
	http      *http.Client
	log       *logger.Logger
	alerts    alert.Sink

	mu    sync.Mutex
	envs  map[config.Environment]*envState
}

// SetAlertSink wires where keep-alive failure alerts are delivered,
// defaulting to a log-only sink if never called.
func (m *Manager) SetAlertSink(sink alert.Sink) { m.alerts = sink }

// NewManager constructs a Manager rooted at cfg.StateDir.
func NewManager(cfg *config.Config) (*Manager, error) {
	dir := filepath.Join(cfg.StateDir, "oauth")
	key, err := loadOrCreateKey(dir)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:       cfg,
		key:       key,
		stateDir:  dir,
		authorize: "https://us.etrade.com/e/t/etws/authorize",
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logger.For("oauth"),
		alerts:    alert.NewLogSink(),
		envs:      make(map[config.Environment]*envState),
	}, nil
}

func (m *Manager) state(env config.Environment) *envState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.envs[env]
	if !ok {
		st = &envState{}
		if tok, err := m.loadTokenFromDisk(env); err == nil {
			st.token = tok
		}
		if met, err := m.loadMetricsFromDisk(env); err == nil {
			st.metrics = *met
		}
		m.envs[env] = st
	}
	return st
}

func (m *Manager) tokenFile(env config.Environment) string {
	return filepath.Join(m.stateDir, fmt.Sprintf("tokens_%s.json", env))
}

func (m *Manager) metricsFile(env config.Environment) string {
	return filepath.Join(m.stateDir, fmt.Sprintf("metrics_%s.json", env))
}

type onDiskToken struct {
	OAuthToken       string `json:"oauth_token"`       // ciphertext
	OAuthTokenSecret string `json:"oauth_token_secret"` // ciphertext
	CreatedAt        string `json:"created_at"`
	LastUsed         string `json:"last_used"`
	LastRenewed      string `json:"last_renewed"`
	ExpiresAt        string `json:"expires_at"`
	IssuedETDate     string `json:"issued_et_date"`
}

func (m *Manager) saveToken(env config.Environment, tok *TokenInfo) error {
	encToken, err := encryptString(m.key, tok.OAuthToken)
	if err != nil {
		return err
	}
	encSecret, err := encryptString(m.key, tok.OAuthTokenSecret)
	if err != nil {
		return err
	}
	onDisk := onDiskToken{
		OAuthToken:       encToken,
		OAuthTokenSecret: encSecret,
		CreatedAt:        tok.CreatedAt.Format(time.RFC3339),
		LastUsed:         tok.LastUsed.Format(time.RFC3339),
		LastRenewed:      tok.LastRenewed.Format(time.RFC3339),
		ExpiresAt:        tok.ExpiresAt.Format(time.RFC3339),
		IssuedETDate:     tok.IssuedETDate,
	}
	raw, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.stateDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(m.tokenFile(env), raw, 0o600)
}

func (m *Manager) loadTokenFromDisk(env config.Environment) (*TokenInfo, error) {
	raw, err := os.ReadFile(m.tokenFile(env))
	if err != nil {
		return nil, err
	}
	var onDisk onDiskToken
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return nil, err
	}
	tok, err := decryptString(m.key, onDisk.OAuthToken)
	if err != nil {
		return nil, err
	}
	secret, err := decryptString(m.key, onDisk.OAuthTokenSecret)
	if err != nil {
		return nil, err
	}
	parse := func(s string) time.Time { t, _ := time.Parse(time.RFC3339, s); return t }
	return &TokenInfo{
		OAuthToken:       tok,
		OAuthTokenSecret: secret,
		CreatedAt:        parse(onDisk.CreatedAt),
		LastUsed:         parse(onDisk.LastUsed),
		LastRenewed:      parse(onDisk.LastRenewed),
		ExpiresAt:        parse(onDisk.ExpiresAt),
		IssuedETDate:     onDisk.IssuedETDate,
	}, nil
}

func (m *Manager) saveMetrics(env config.Environment, met Metrics) error {
	raw, err := json.MarshalIndent(met, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.stateDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(m.metricsFile(env), raw, 0o600)
}

func (m *Manager) loadMetricsFromDisk(env config.Environment) (*Metrics, error) {
	raw, err := os.ReadFile(m.metricsFile(env))
	if err != nil {
		return nil, err
	}
	var met Metrics
	if err := json.Unmarshal(raw, &met); err != nil {
		return nil, err
	}
	return &met, nil
}

// ---------------------------------------------------------------------
// Signing (RFC 5849 HMAC-SHA1)
// ---------------------------------------------------------------------

func percentEncode(s string) string {
	// RFC 3986 unreserved set; url.QueryEscape over-encodes space as '+'
	// and under-encodes some reserved chars, so we do it by hand per the
	// OAuth 1.0a signing spec.
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func generateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// buildSignature constructs the RFC 5849 signature base string and returns
// the base64 HMAC-SHA1 signature.
func buildSignature(method, rawURL string, params map[string]string, consumerSecret, tokenSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	paramString := strings.Join(pairs, "&")

	baseString := strings.ToUpper(method) + "&" + percentEncode(rawURL) + "&" + percentEncode(paramString)
	signingKey := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignRequest signs (method, rawURL, params) and returns the
// "Authorization: OAuth ..." header value, updating last_used. It calls
// RenewIfNeeded internally first.
func (m *Manager) SignRequest(env config.Environment, method, rawURL string, params map[string]string) (string, error) {
	if err := m.RenewIfNeeded(env); err != nil {
		return "", err
	}

	st := m.state(env)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.token == nil {
		return "", errs.New(errs.CredentialsMissing, "no token on file, run oauth start")
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     m.cfg.ConsumerKey(env),
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(nowFunc().Unix(), 10),
		"oauth_token":            st.token.OAuthToken,
		"oauth_version":          "1.0",
	}

	all := make(map[string]string, len(oauthParams)+len(params))
	for k, v := range oauthParams {
		all[k] = v
	}
	for k, v := range params {
		all[k] = v
	}

	sig := buildSignature(method, rawURL, all, m.cfg.ConsumerSecret(env), st.token.OAuthTokenSecret)
	oauthParams["oauth_signature"] = sig

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, percentEncode(oauthParams[k])))
	}

	st.token.LastUsed = nowFunc()
	_ = m.saveToken(env, st.token)

	return "OAuth " + strings.Join(parts, ", "), nil
}

// RenewIfNeeded enforces the daily reauth requirement and idle renewal.
// Concurrent callers for the same env are serialized by envState's lock.
func (m *Manager) RenewIfNeeded(env config.Environment) error {
	st := m.state(env)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.token == nil {
		return errs.New(errs.CredentialsMissing, "no token on file, run oauth start")
	}

	today := etDateString(nowFunc())
	if st.token.IssuedETDate != today {
		return errs.New(errs.DailyReauthRequired, "token was issued on a prior ET day, run oauth start")
	}

	idle := nowFunc().Sub(st.token.LastRenewed)
	if idle <= 2*time.Hour {
		return nil
	}

	st.metrics.RenewAttempts++
	if err := m.renewTokenLocked(env, st); err != nil {
		st.metrics.RenewFailures++
		st.metrics.ConsecutiveFailures++
		_ = m.saveMetrics(env, st.metrics)
		return err
	}
	st.token.LastRenewed = nowFunc()
	st.metrics.ConsecutiveFailures = 0
	st.metrics.LastSuccessfulCall = nowFunc()
	_ = m.saveToken(env, st.token)
	_ = m.saveMetrics(env, st.metrics)
	return nil
}

// renewTokenLocked calls the broker's renew_access_token endpoint.
// Makes up to 3 attempts, sleeping 1s then 2s between them; a 401
// mentioning token_revoked/token_inactive, or an expired token, returns
// at once with no further retry.
func (m *Manager) renewTokenLocked(env config.Environment, st *envState) error {
	renewURL := m.cfg.BaseURL(env) + "/oauth/renew_access_token"
	return m.signedGetWithRetry(env, st, renewURL, nil)
}

func (m *Manager) signedGetWithRetry(env config.Environment, st *envState, rawURL string, params map[string]string) error {
	delay := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		err := m.doSignedGetLocked(env, st, rawURL, params)
		if err == nil {
			return nil
		}
		if errs.Is(err, errs.TokenInactive) || errs.Is(err, errs.TokenExpired) {
			return err
		}
		if attempt == 2 {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return nil
}

// doSignedGetLocked issues one signed GET against the broker, assuming
// st.mu is already held by the caller.
func (m *Manager) doSignedGetLocked(env config.Environment, st *envState, rawURL string, params map[string]string) error {
	nonce, err := generateNonce()
	if err != nil {
		return err
	}
	oauthParams := map[string]string{
		"oauth_consumer_key":     m.cfg.ConsumerKey(env),
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(nowFunc().Unix(), 10),
		"oauth_token":            st.token.OAuthToken,
		"oauth_version":          "1.0",
	}
	all := map[string]string{}
	for k, v := range oauthParams {
		all[k] = v
	}
	for k, v := range params {
		all[k] = v
	}
	sig := buildSignature(http.MethodGet, rawURL, all, m.cfg.ConsumerSecret(env), st.token.OAuthTokenSecret)
	oauthParams["oauth_signature"] = sig

	parts := make([]string, 0, len(oauthParams))
	for k, v := range oauthParams {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, percentEncode(v)))
	}
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(parts, ", "))

	resp, err := m.http.Do(req)
	if err != nil {
		return errs.Newf(errs.BrokerTransient, "oauth http call failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		st.metrics.Last401Count++
		text := string(body)
		switch {
		case strings.Contains(text, "token_revoked"), strings.Contains(text, "token_inactive"):
			return errs.New(errs.TokenInactive, "broker reports token inactive/revoked")
		case strings.Contains(text, "token_expired"):
			return errs.New(errs.TokenExpired, "broker reports token expired")
		}
		return errs.Newf(errs.BrokerPermanent, "unauthorized: %s", text)
	}
	if resp.StatusCode >= 500 {
		return errs.Newf(errs.BrokerTransient, "broker 5xx: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return errs.Newf(errs.BrokerPermanent, "broker 4xx: %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// ---------------------------------------------------------------------
// Three-legged authorization
// ---------------------------------------------------------------------

// AuthorizeURLFunc is called by Start with the operator authorize URL; the
// default implementation prints it (CLI out-of-scope formatting lives in
// cmd/easyorb). Tests substitute a capturing func.
type AuthorizeURLFunc func(url string) (verifier string, err error)

// Start runs the 3-legged OAuth 1.0a flow: request token, present the
// authorize URL via present, exchange the operator-supplied verifier for an
// access token, and persist it.
func (m *Manager) Start(env config.Environment, present AuthorizeURLFunc) error {
	if m.cfg.ConsumerKey(env) == "" || m.cfg.ConsumerSecret(env) == "" {
		return errs.New(errs.CredentialsMissing, "consumer key/secret not configured for "+string(env))
	}

	reqToken, reqSecret, err := m.getRequestToken(env)
	if err != nil {
		return errs.Newf(errs.BrokerRejected, "request token: %v", err)
	}

	authURL := fmt.Sprintf("%s?key=%s&token=%s", m.authorize, url.QueryEscape(m.cfg.ConsumerKey(env)), url.QueryEscape(reqToken))

	if secret := m.cfg.TOTPSecret(env); secret != "" {
		if code, err := GenerateMFACode(secret); err == nil {
			m.log.Infof("generated MFA code for %s authorize step", env)
			authURL += "&mfa=" + code
		}
	}

	verifier, err := present(authURL)
	if err != nil {
		return errs.Newf(errs.UserAborted, "authorize step aborted: %v", err)
	}
	if verifier == "" {
		return errs.New(errs.UserAborted, "empty verifier")
	}

	accessToken, accessSecret, err := m.getAccessToken(env, reqToken, reqSecret, verifier)
	if err != nil {
		return errs.Newf(errs.BrokerRejected, "access token exchange: %v", err)
	}

	now := nowFunc()
	tok := &TokenInfo{
		OAuthToken:       accessToken,
		OAuthTokenSecret: accessSecret,
		CreatedAt:        now,
		LastUsed:         now,
		LastRenewed:      now,
		ExpiresAt:        nextMidnightET(now),
		IssuedETDate:     etDateString(now),
	}

	st := m.state(env)
	st.mu.Lock()
	st.token = tok
	st.metrics.NextMidnightET = tok.ExpiresAt
	err = m.saveToken(env, tok)
	metErr := m.saveMetrics(env, st.metrics)
	st.mu.Unlock()
	if err != nil {
		return err
	}
	return metErr
}

func (m *Manager) getRequestToken(env config.Environment) (token, secret string, err error) {
	reqURL := m.cfg.BaseURL(env) + "/oauth/request_token"
	params := map[string]string{"oauth_callback": "oob"}
	body, err := m.signedPublicGET(env, reqURL, params, "", "")
	if err != nil {
		return "", "", err
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return "", "", err
	}
	return values.Get("oauth_token"), values.Get("oauth_token_secret"), nil
}

func (m *Manager) getAccessToken(env config.Environment, reqToken, reqSecret, verifier string) (token, secret string, err error) {
	accURL := m.cfg.BaseURL(env) + "/oauth/access_token"
	params := map[string]string{"oauth_verifier": verifier}
	body, err := m.signedPublicGET(env, accURL, params, reqToken, reqSecret)
	if err != nil {
		return "", "", err
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return "", "", err
	}
	return values.Get("oauth_token"), values.Get("oauth_token_secret"), nil
}

// signedPublicGET signs and issues a GET using an explicit (possibly
// request-stage) token, outside of any persisted TokenInfo.
func (m *Manager) signedPublicGET(env config.Environment, rawURL string, params map[string]string, token, tokenSecret string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}
	oauthParams := map[string]string{
		"oauth_consumer_key":     m.cfg.ConsumerKey(env),
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(nowFunc().Unix(), 10),
		"oauth_version":          "1.0",
	}
	if token != "" {
		oauthParams["oauth_token"] = token
	}
	all := map[string]string{}
	for k, v := range oauthParams {
		all[k] = v
	}
	for k, v := range params {
		all[k] = v
	}
	sig := buildSignature(http.MethodGet, rawURL, all, m.cfg.ConsumerSecret(env), tokenSecret)
	all["oauth_signature"] = sig

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := url.Values{}
	for _, k := range keys {
		vals.Set(k, all[k])
	}

	resp, err := m.http.Get(rawURL + "?" + vals.Encode())
	if err != nil {
		return "", errs.Newf(errs.BrokerTransient, "oauth request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("broker returned %d: %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}

// Status returns a structured snapshot for operators.
type Status struct {
	Environment    config.Environment `json:"environment"`
	HasToken       bool               `json:"has_token"`
	IssuedETDate   string             `json:"issued_et_date,omitempty"`
	ExpiresAt      time.Time          `json:"expires_at,omitempty"`
	LastUsed       time.Time          `json:"last_used,omitempty"`
	LastRenewed    time.Time          `json:"last_renewed,omitempty"`
	Metrics        Metrics            `json:"metrics"`
}

func (m *Manager) Status(env config.Environment) Status {
	st := m.state(env)
	st.mu.Lock()
	defer st.mu.Unlock()
	s := Status{Environment: env, Metrics: st.metrics}
	if st.token != nil {
		s.HasToken = true
		s.IssuedETDate = st.token.IssuedETDate
		s.ExpiresAt = st.token.ExpiresAt
		s.LastUsed = st.token.LastUsed
		s.LastRenewed = st.token.LastRenewed
	}
	return s
}
