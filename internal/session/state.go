package session

import (
	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
	"github.com/alexjbarnes/fedi-client/internal/models"
)

// AuthState is the position of a session in the authorization sequence.
type AuthState int

const (
	Uninitialized AuthState = iota
	ApplicationReady
	UserRegistered
	LoggedIn
	LoggedOut
)

func (a AuthState) String() string {
	switch a {
	case Uninitialized:
		return "uninitialized"
	case ApplicationReady:
		return "application-ready"
	case UserRegistered:
		return "user-registered"
	case LoggedIn:
		return "logged-in"
	case LoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// State holds the in-memory credentials of a session. The zero value is
// an uninitialized session. Fields change only through methods that keep
// two rules: an access token is held exactly when a username is, and no
// token is held without an application.
type State struct {
	app          *models.Application
	requestToken *models.Token
	accessToken  *models.Token
	username     string
	hasSeenRules bool
	registered   bool
	loggedOut    bool
}

// Application returns a copy of the application, or nil.
func (s *State) Application() *models.Application {
	if s.app == nil {
		return nil
	}

	app := *s.app

	return &app
}

// RequestToken returns a copy of the request token, or nil.
func (s *State) RequestToken() *models.Token {
	if s.requestToken == nil {
		return nil
	}

	tok := *s.requestToken

	return &tok
}

// AccessToken returns the user access token string, or "".
func (s *State) AccessToken() string {
	if s.accessToken == nil {
		return ""
	}

	return s.accessToken.AccessToken
}

// Username returns the logged-in username, or "".
func (s *State) Username() string { return s.username }

// HasSeenRules reports whether the instance rules were fetched.
func (s *State) HasSeenRules() bool { return s.hasSeenRules }

// LoggedIn reports whether a user is logged in.
func (s *State) LoggedIn() bool { return s.username != "" }

// AuthState derives the authorization state from the held credentials.
func (s *State) AuthState() AuthState {
	switch {
	case !s.app.Initialized():
		return Uninitialized
	case s.LoggedIn():
		return LoggedIn
	case s.loggedOut:
		return LoggedOut
	case s.registered:
		return UserRegistered
	default:
		return ApplicationReady
	}
}

func (s *State) setApplication(app *models.Application) error {
	if !app.Initialized() {
		return &apperr.StateError{Op: "set application", Err: apperr.ErrAppNotInitialized}
	}

	cp := *app
	s.app = &cp

	return nil
}

func (s *State) setRequestToken(tok *models.Token) error {
	if !s.app.Initialized() {
		return &apperr.StateError{Op: "set request token", Err: apperr.ErrAppNotInitialized}
	}

	cp := *tok
	s.requestToken = &cp

	return nil
}

// logIn sets the username and access token together.
func (s *State) logIn(username string, tok *models.Token) error {
	if !s.app.Initialized() {
		return &apperr.StateError{Op: "log in", Err: apperr.ErrAppNotInitialized}
	}

	if username == "" || tok == nil || tok.AccessToken == "" {
		return &apperr.ValidationError{Field: "username", Err: apperr.ErrEmptyUsername}
	}

	cp := *tok
	s.username = username
	s.accessToken = &cp
	s.loggedOut = false

	return nil
}

// logOut clears the username and access token together. The request
// token and application are kept.
func (s *State) logOut() {
	s.username = ""
	s.accessToken = nil

	if s.app.Initialized() {
		s.loggedOut = true
	}
}

func (s *State) markRulesSeen() { s.hasSeenRules = true }

func (s *State) markRegistered() { s.registered = true }
