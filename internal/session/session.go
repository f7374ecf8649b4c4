// Package session manages the authorization lifecycle against a single
// instance: application registration, request and access tokens, user
// registration and login, and the user-scoped calls that need them.
//
// A Session is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/alexjbarnes/fedi-client/mastodon"
)

// Config configures a Session.
type Config struct {
	Hostname string
	Store    CredentialStore
	Connect  Connector
	Logger   *slog.Logger

	// ForceRequests skips cache reads. Fresh credentials still overwrite
	// the cache.
	ForceRequests bool

	// Website is sent when the application is created. Optional.
	Website string

	// Now is the clock used for scheduling. Defaults to time.Now.
	Now func() time.Time
}

// RegisterParams describes a new account.
type RegisterParams struct {
	Username  string
	Email     string
	Password  string
	Agreement bool
	Locale    string
	Reason    string

	// AutoLogin logs the new user in after registration.
	AutoLogin bool
}

// Session is a client session against one instance.
type Session struct {
	hostname string
	store    CredentialStore
	connect  Connector
	log      *slog.Logger
	force    bool
	website  string
	now      func() time.Time

	state State

	// anon carries no user token. authed is bound to the access token
	// and is nil while logged out.
	anon   Gateway
	authed Gateway

	initErr error
}

// New creates a session and initializes its application from the store
// or the instance. An initialization failure does not fail New: it is
// logged, kept in InitErr, and the session stays Uninitialized. The
// returned error covers invalid configuration only.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("session: hostname is required")
	}

	if cfg.Store == nil {
		return nil, errors.New("session: credential store is required")
	}

	if cfg.Connect == nil {
		return nil, errors.New("session: connector is required")
	}

	s := &Session{
		hostname: cfg.Hostname,
		store:    cfg.Store,
		connect:  cfg.Connect,
		log:      cfg.Logger,
		force:    cfg.ForceRequests,
		website:  cfg.Website,
		now:      cfg.Now,
	}

	if s.log == nil {
		s.log = slog.Default()
	}

	if s.now == nil {
		s.now = time.Now
	}

	s.log = s.log.With(slog.String("instance", s.hostname))
	s.anon = s.connect("")

	if err := s.initApplication(ctx); err != nil {
		s.initErr = err
		s.log.Error("application initialization failed",
			slog.Int("status", apperr.StatusCode(err)),
			slog.String("error", err.Error()),
		)
	}

	return s, nil
}

func (s *Session) initApplication(ctx context.Context) error {
	s.log.Debug("initializing application",
		slog.String("name", ClientName),
		slog.String("redirect", NoRedirect),
		slog.String("scope", FullScope),
	)

	app, err := resolve(ctx, s.log, s.force, source[models.Application]{
		name: "application",
		load: func() (*models.Application, error) {
			return s.store.GetApplication(s.hostname)
		},
		fetch: func(ctx context.Context) (*models.Application, error) {
			return execute(ctx, s.log, "CreateApplication", func(ctx context.Context) (*models.Application, error) {
				return s.anon.CreateApplication(ctx, ClientName, NoRedirect, s.website, FullScope)
			})
		},
		save: func(app models.Application) error {
			return s.store.SaveApplication(s.hostname, app)
		},
		usable: (*models.Application).Initialized,
	})
	if err != nil {
		return err
	}

	if err := s.state.setApplication(app); err != nil {
		return err
	}

	s.log.Info("application initialized", slog.String("client_id", app.ClientID))

	return nil
}

// Hostname returns the instance the session talks to.
func (s *Session) Hostname() string { return s.hostname }

// InitErr returns the application initialization failure, if any.
func (s *Session) InitErr() error { return s.initErr }

// AuthState returns the current authorization state.
func (s *Session) AuthState() AuthState { return s.state.AuthState() }

// Username returns the logged-in username, or "".
func (s *Session) Username() string { return s.state.Username() }

// Application returns a copy of the session's application, or nil.
func (s *Session) Application() *models.Application { return s.state.Application() }

// HasSeenRules reports whether GetRules has succeeded.
func (s *Session) HasSeenRules() bool { return s.state.HasSeenRules() }

// AccessToken returns the logged-in user's access token, or "".
func (s *Session) AccessToken() string { return s.state.AccessToken() }

// GetRules returns the instance rules joined by newlines. A successful
// call unlocks Register.
func (s *Session) GetRules(ctx context.Context) (string, error) {
	rules, err := execute(ctx, s.log, "InstanceRules", s.anon.InstanceRules)
	if err != nil {
		return "", err
	}

	s.state.markRulesSeen()

	return strings.Join(rules, "\n"), nil
}

// RequireApplication returns the initialized application, or a
// StateError naming op whose cause includes InitErr.
func (s *Session) RequireApplication(op string) (*models.Application, error) {
	return s.requireApplication(op)
}

// requireApplication fails with a StateError unless the application has
// a client id and secret.
func (s *Session) requireApplication(op string) (*models.Application, error) {
	app := s.state.Application()
	if !app.Initialized() {
		err := error(apperr.ErrAppNotInitialized)
		if s.initErr != nil {
			err = errors.Join(apperr.ErrAppNotInitialized, s.initErr)
		}

		return nil, &apperr.StateError{Op: op, Err: err}
	}

	return app, nil
}

// requestToken returns the held request token or resolves one through
// the client credentials grant.
func (s *Session) requestToken(ctx context.Context, app *models.Application) (*models.Token, error) {
	if tok := s.state.RequestToken(); tok != nil {
		return tok, nil
	}

	tok, err := resolve(ctx, s.log, s.force, source[models.Token]{
		name: "request token",
		load: func() (*models.Token, error) {
			return s.store.GetRequestToken(app.ClientID)
		},
		fetch: func(ctx context.Context) (*models.Token, error) {
			return execute(ctx, s.log, "ClientCredentialsToken", func(ctx context.Context) (*models.Token, error) {
				return s.anon.ClientCredentialsToken(ctx, app.ClientID, app.ClientSecret, NoRedirect, FullScope)
			})
		},
		save: func(tok models.Token) error {
			return s.store.SaveRequestToken(app.ClientID, tok)
		},
		usable: usableToken,
	})
	if err != nil {
		return nil, err
	}

	if err := s.state.setRequestToken(tok); err != nil {
		return nil, err
	}

	return tok, nil
}

// AuthorizeApplication makes sure the session holds a request token.
func (s *Session) AuthorizeApplication(ctx context.Context) error {
	app, err := s.requireApplication("authorize application")
	if err != nil {
		return err
	}

	_, err = s.requestToken(ctx, app)

	return err
}

// Register creates an account. GetRules must have succeeded first. The
// token issued for the new account is cached under its username; with
// AutoLogin the user is then logged in. A request token acquired on the
// way is kept even when the registration itself fails.
func (s *Session) Register(ctx context.Context, p RegisterParams) error {
	if !s.state.HasSeenRules() {
		return &apperr.ValidationError{
			Field:  "rules",
			Detail: "fetch and show the instance rules first",
			Err:    apperr.ErrRulesNotSeen,
		}
	}

	app, err := s.requireApplication("register")
	if err != nil {
		return err
	}

	if p.Username == "" {
		return &apperr.ValidationError{Field: "username", Err: apperr.ErrEmptyUsername}
	}

	locale, err := checkLocale(p.Locale)
	if err != nil {
		return err
	}

	s.log.Debug("registering user",
		slog.String("username", p.Username),
		slog.Bool("agreement", p.Agreement),
		slog.String("locale", locale),
	)

	reqTok, err := s.requestToken(ctx, app)
	if err != nil {
		s.log.Error("user registration failed", slog.Int("status", apperr.StatusCode(err)))
		return err
	}

	gw := s.connect(reqTok.AccessToken)
	req := mastodon.RegisterRequest{
		Username:  p.Username,
		Email:     p.Email,
		Password:  p.Password,
		Agreement: p.Agreement,
		Locale:    locale,
		Reason:    p.Reason,
	}

	tok, err := execute(ctx, s.log, "RegisterAccount", func(ctx context.Context) (*models.Token, error) {
		return gw.RegisterAccount(ctx, req)
	})
	if err != nil {
		s.log.Error("user registration failed", slog.Int("status", apperr.StatusCode(err)))
		return err
	}

	if err := s.store.SaveAccessToken(app.ClientID, p.Username, *tok); err != nil {
		s.log.Warn("caching credential failed",
			slog.String("credential", "access token"),
			slog.String("error", err.Error()),
		)
	}

	s.state.markRegistered()
	s.log.Info("user registered", slog.String("username", p.Username))

	if p.AutoLogin {
		return s.Login(ctx, p.Username, p.Password)
	}

	return nil
}

// Login logs username in, preferring a cached access token over the
// password grant. On failure the session is left as it was.
func (s *Session) Login(ctx context.Context, username, password string) error {
	app, err := s.requireApplication("login")
	if err != nil {
		return err
	}

	if username == "" {
		return &apperr.ValidationError{Field: "username", Err: apperr.ErrEmptyUsername}
	}

	tok, err := resolve(ctx, s.log, s.force, source[models.Token]{
		name: "access token",
		load: func() (*models.Token, error) {
			return s.store.GetAccessToken(app.ClientID, username)
		},
		fetch: func(ctx context.Context) (*models.Token, error) {
			return execute(ctx, s.log, "PasswordGrantToken", func(ctx context.Context) (*models.Token, error) {
				return s.anon.PasswordGrantToken(ctx, app.ClientID, app.ClientSecret, NoRedirect, username, password, FullScope)
			})
		},
		save: func(tok models.Token) error {
			return s.store.SaveAccessToken(app.ClientID, username, tok)
		},
		usable: usableToken,
	})
	if err != nil {
		s.log.Error("user login failed",
			slog.String("username", username),
			slog.Int("status", apperr.StatusCode(err)),
		)

		return err
	}

	if err := s.state.logIn(username, tok); err != nil {
		return err
	}

	s.authed = s.connect(tok.AccessToken)
	s.log.Info("logged in", slog.String("username", username))

	return nil
}

// Logout forgets the logged-in user. Cached tokens are kept, so a later
// Login for the same user needs no network call. Calling Logout while
// logged out does nothing.
func (s *Session) Logout() {
	if s.state.LoggedIn() {
		s.log.Info("logged out", slog.String("username", s.state.Username()))
	}

	s.state.logOut()
	s.authed = nil
}

// EnsureLogin returns a StateError unless a user is logged in.
func (s *Session) EnsureLogin() error {
	return s.ensureLogin("ensure login")
}

func (s *Session) ensureLogin(op string) error {
	if !s.state.LoggedIn() || s.authed == nil {
		return &apperr.StateError{Op: op, Err: apperr.ErrNotLoggedIn}
	}

	return nil
}

// gateway returns the user gateway when logged in, else the anonymous one.
func (s *Session) gateway() Gateway {
	if s.authed != nil {
		return s.authed
	}

	return s.anon
}

func usableToken(t *models.Token) bool {
	return t.AccessToken != ""
}
