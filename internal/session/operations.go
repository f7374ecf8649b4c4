package session

import (
	"context"
	"strings"

	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
	"github.com/alexjbarnes/fedi-client/internal/models"
)

// HomeTimeline returns the logged-in user's home timeline.
func (s *Session) HomeTimeline(ctx context.Context) ([]models.Status, error) {
	if err := s.ensureLogin("home timeline"); err != nil {
		return nil, err
	}

	return execute(ctx, s.log, "HomeTimeline", s.authed.HomeTimeline)
}

// PublicTimeline returns the federated timeline. No login is needed.
func (s *Session) PublicTimeline(ctx context.Context) ([]models.Status, error) {
	return execute(ctx, s.log, "PublicTimeline", s.gateway().PublicTimeline)
}

// SearchUsers returns up to five accounts matching query.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]models.Account, error) {
	if err := s.ensureLogin("search users"); err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return nil, &apperr.ValidationError{Field: "query", Err: apperr.ErrEmptyQuery}
	}

	gw := s.authed

	return execute(ctx, s.log, "SearchAccounts", func(ctx context.Context) ([]models.Account, error) {
		return gw.SearchAccounts(ctx, query, searchLimit)
	})
}

// UserByUsername looks up username@host and returns the best match, or
// nil when there is none. An empty host means the session's instance.
func (s *Session) UserByUsername(ctx context.Context, username, host string) (*models.Account, error) {
	if err := s.ensureLogin("user by username"); err != nil {
		return nil, err
	}

	username = strings.ReplaceAll(username, "@", "")
	if username == "" {
		return nil, &apperr.ValidationError{Field: "username", Err: apperr.ErrEmptyUsername}
	}

	host = strings.ReplaceAll(host, "@", "")
	if host == "" {
		host = s.hostname
	}

	query := username + "@" + host
	gw := s.authed

	accounts, err := execute(ctx, s.log, "SearchAccounts", func(ctx context.Context) ([]models.Account, error) {
		return gw.SearchAccounts(ctx, query, lookupLimit)
	})
	if err != nil {
		return nil, err
	}

	if len(accounts) == 0 {
		return nil, nil
	}

	acct := accounts[0]

	return &acct, nil
}

// Me returns the logged-in user's account.
func (s *Session) Me(ctx context.Context) (*models.Account, error) {
	if err := s.ensureLogin("me"); err != nil {
		return nil, err
	}

	return execute(ctx, s.log, "VerifyUserCredentials", s.authed.VerifyUserCredentials)
}

// PostStatus publishes text as the logged-in user.
func (s *Session) PostStatus(ctx context.Context, text string) (*models.Status, error) {
	if err := s.ensureLogin("post status"); err != nil {
		return nil, err
	}

	if err := checkStatusText(text); err != nil {
		return nil, err
	}

	gw := s.authed

	return execute(ctx, s.log, "PostStatus", func(ctx context.Context) (*models.Status, error) {
		return gw.PostStatus(ctx, text)
	})
}

// VerifyAppCredentials asks the instance to confirm the application's
// request token. The session must hold a request token.
func (s *Session) VerifyAppCredentials(ctx context.Context) (*models.Application, error) {
	tok := s.state.RequestToken()
	if tok == nil {
		return nil, &apperr.StateError{Op: "verify app credentials", Err: apperr.ErrAppNotAuthorized}
	}

	return execute(ctx, s.log, "VerifyAppCredentials", s.connect(tok.AccessToken).VerifyAppCredentials)
}

// Stream delivers the logged-in user's stream events to handle until ctx
// ends or handle returns an error.
func (s *Session) Stream(ctx context.Context, handle func(models.StreamEvent) error) error {
	if err := s.ensureLogin("stream"); err != nil {
		return err
	}

	gw := s.authed

	// A handler error stops the stream but is not a remote failure.
	var handlerErr error

	_, err := execute(ctx, s.log, "StreamUser", func(ctx context.Context) (struct{}, error) {
		err := gw.StreamUser(ctx, func(ev models.StreamEvent) error {
			handlerErr = handle(ev)
			return handlerErr
		})
		if handlerErr != nil {
			return struct{}{}, nil
		}

		return struct{}{}, err
	})
	if handlerErr != nil {
		return handlerErr
	}

	return err
}
