package e2e_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/fedi-client/internal/session"
	"github.com/alexjbarnes/fedi-client/internal/state"
	"github.com/alexjbarnes/fedi-client/mastodon"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	testHostname = "example.social"
	testUsername = "alice"
	testPassword = "pw123456"
	testEmail    = "alice@example.com"
	testClientID = "e2e-client-id"
	testSecret   = "e2e-client-secret"
	appToken     = "e2e-app-token"
	userToken    = "e2e-user-token"
)

// instance is an in-memory Mastodon API. It keeps accounts, issued
// tokens and posted statuses so flows can be checked across sessions.
type instance struct {
	srv *httptest.Server

	mu        sync.Mutex
	passwords map[string]string
	tokens    map[string]string // access token -> username
	statuses  []string
	calls     map[string]int
	events    []string
}

func newInstance(t *testing.T) *instance {
	t.Helper()

	in := &instance{
		passwords: map[string]string{},
		tokens:    map[string]string{},
		calls:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/apps", in.handleApps)
	mux.HandleFunc("GET /api/v1/apps/verify_credentials", in.handleVerifyApp)
	mux.HandleFunc("GET /api/v1/instance/rules", in.handleRules)
	mux.HandleFunc("POST /oauth/token", in.handleToken)
	mux.HandleFunc("POST /api/v1/accounts", in.handleRegister)
	mux.HandleFunc("GET /api/v1/accounts/verify_credentials", in.handleVerifyUser)
	mux.HandleFunc("GET /api/v1/accounts/search", in.handleSearch)
	mux.HandleFunc("GET /api/v1/timelines/home", in.handleHome)
	mux.HandleFunc("POST /api/v1/statuses", in.handlePost)
	mux.HandleFunc("/api/v1/streaming", in.handleStream)

	in.srv = httptest.NewServer(mux)
	t.Cleanup(in.srv.Close)

	return in
}

func (in *instance) count(name string) int {
	in.mu.Lock()
	defer in.mu.Unlock()

	return in.calls[name]
}

func (in *instance) record(name string) {
	in.mu.Lock()
	in.calls[name]++
	in.mu.Unlock()
}

func (in *instance) bearer(r *http.Request) (string, bool) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	in.mu.Lock()
	defer in.mu.Unlock()

	user, ok := in.tokens[tok]

	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (in *instance) handleApps(w http.ResponseWriter, r *http.Request) {
	in.record("apps")

	var req mastodon.CreateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "bad body"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":            "1",
		"name":          req.ClientName,
		"redirect_uri":  req.RedirectURIs,
		"client_id":     testClientID,
		"client_secret": testSecret,
	})
}

func (in *instance) handleVerifyApp(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+appToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": session.ClientName})
}

func (in *instance) handleRules(w http.ResponseWriter, _ *http.Request) {
	in.record("rules")
	writeJSON(w, http.StatusOK, []map[string]string{
		{"id": "1", "text": "Be excellent to each other"},
		{"id": "2", "text": "No advertising"},
	})
}

func (in *instance) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}

	if id != testClientID || secret != testSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		in.record("client_credentials")
		writeJSON(w, http.StatusOK, map[string]string{"access_token": appToken, "token_type": "Bearer", "scope": session.FullScope})
	case "password":
		in.record("password")

		user, pass := r.PostForm.Get("username"), r.PostForm.Get("password")

		in.mu.Lock()
		want, known := in.passwords[user]
		if known && want == pass {
			in.tokens[userToken] = user
		}
		in.mu.Unlock()

		if !known || want != pass {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"access_token": userToken, "token_type": "Bearer", "scope": session.FullScope})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (in *instance) handleRegister(w http.ResponseWriter, r *http.Request) {
	in.record("register")

	if r.Header.Get("Authorization") != "Bearer "+appToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}

	var req mastodon.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Agreement {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "Validation failed: agreement must be accepted"})
		return
	}

	in.mu.Lock()
	in.passwords[req.Username] = req.Password
	in.tokens[userToken] = req.Username
	in.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"access_token": userToken, "token_type": "Bearer", "scope": session.FullScope})
}

func (in *instance) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	user, ok := in.bearer(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": "9", "username": user, "acct": user})
}

func (in *instance) handleSearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := in.bearer(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}

	q := r.URL.Query().Get("q")
	if strings.EqualFold(q, "gargron@mastodon.social") {
		writeJSON(w, http.StatusOK, []map[string]string{
			{"id": "1", "username": "Gargron", "acct": "Gargron@mastodon.social"},
			{"id": "2", "username": "gargron_fan", "acct": "gargron_fan@mastodon.social"},
		})

		return
	}

	writeJSON(w, http.StatusOK, []map[string]string{})
}

func (in *instance) handleHome(w http.ResponseWriter, r *http.Request) {
	if _, ok := in.bearer(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]map[string]string, 0, len(in.statuses))
	for i := len(in.statuses) - 1; i >= 0; i-- {
		out = append(out, map[string]string{"id": strconv.Itoa(i + 1), "content": in.statuses[i]})
	}

	writeJSON(w, http.StatusOK, out)
}

func (in *instance) handlePost(w http.ResponseWriter, r *http.Request) {
	if _, ok := in.bearer(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}

	var req mastodon.PostStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "bad body"})
		return
	}

	if req.ScheduledAt != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":           "s1",
			"scheduled_at": req.ScheduledAt,
			"params":       map[string]string{"text": req.Status},
		})

		return
	}

	payload, _ := json.Marshal(map[string]string{"content": req.Status})
	event, _ := json.Marshal(map[string]interface{}{
		"stream":  []string{"user"},
		"event":   "update",
		"payload": string(payload),
	})

	in.mu.Lock()
	in.statuses = append(in.statuses, req.Status)
	in.events = append(in.events, string(event))
	in.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"id": "100", "content": req.Status, "url": "https://" + testHostname + "/@alice/100"})
}

// handleStream replays every event produced so far, then closes.
func (in *instance) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := in.bearer(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	in.mu.Lock()
	events := append([]string(nil), in.events...)
	in.mu.Unlock()

	for _, ev := range events {
		if err := conn.Write(r.Context(), websocket.MessageText, []byte(ev)); err != nil {
			return
		}
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}

// harness wires a real session to the in-memory instance through the
// HTTP client and a bbolt credential cache on disk.
type harness struct {
	inst      *instance
	statePath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return &harness{
		inst:      newInstance(t),
		statePath: filepath.Join(t.TempDir(), "state.db"),
	}
}

func (h *harness) connector() session.Connector {
	limiter := rate.NewLimiter(rate.Inf, 1)

	return func(accessToken string) session.Gateway {
		return mastodon.NewClient(testHostname,
			mastodon.WithBaseURL(h.inst.srv.URL),
			mastodon.WithHTTPClient(h.inst.srv.Client()),
			mastodon.WithLimiter(limiter),
			mastodon.WithAccessToken(accessToken),
		)
	}
}

// open starts a session on the shared state file, simulating a fresh
// process. The returned func releases the file so the next open can
// take the lock.
func (h *harness) open(t *testing.T, force bool) (*session.Session, func()) {
	t.Helper()

	store, err := state.LoadAt(h.statePath)
	require.NoError(t, err)

	var once sync.Once
	release := func() { once.Do(func() { store.Close() }) }
	t.Cleanup(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := session.New(ctx, session.Config{
		Hostname:      testHostname,
		Store:         store,
		Connect:       h.connector(),
		Logger:        slog.New(slog.DiscardHandler),
		ForceRequests: force,
	})
	require.NoError(t, err)
	require.NoError(t, sess.InitErr())

	return sess, release
}
