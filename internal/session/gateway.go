package session

import (
	"context"
	"time"

	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/alexjbarnes/fedi-client/mastodon"
)

//go:generate mockgen -source=gateway.go -destination=mock_gateway_test.go -package=session

const (
	// NoRedirect is the out-of-band redirect target. The client never
	// receives an authorization callback.
	NoRedirect = "urn:ietf:wg:oauth:2.0:oob"

	// FullScope is requested for every application and token.
	FullScope = "read write push"

	// ClientName is the application name registered with instances.
	ClientName = "fedi-client"

	// DefaultLocale is used for registration when none is given.
	DefaultLocale = "en-US"

	searchLimit = 5
	lookupLimit = 20
)

// Gateway is the remote side of a session. *mastodon.Client implements it.
type Gateway interface {
	CreateApplication(ctx context.Context, name, redirect, website, scope string) (*models.Application, error)
	ClientCredentialsToken(ctx context.Context, clientID, clientSecret, redirect, scope string) (*models.Token, error)
	PasswordGrantToken(ctx context.Context, clientID, clientSecret, redirect, username, password, scope string) (*models.Token, error)
	RegisterAccount(ctx context.Context, req mastodon.RegisterRequest) (*models.Token, error)
	InstanceRules(ctx context.Context) ([]string, error)
	VerifyAppCredentials(ctx context.Context) (*models.Application, error)
	VerifyUserCredentials(ctx context.Context) (*models.Account, error)
	HomeTimeline(ctx context.Context) ([]models.Status, error)
	PublicTimeline(ctx context.Context) ([]models.Status, error)
	SearchAccounts(ctx context.Context, query string, limit int) ([]models.Account, error)
	PostStatus(ctx context.Context, text string) (*models.Status, error)
	ScheduleStatus(ctx context.Context, text string, at time.Time) (*models.ScheduledStatus, error)
	StreamUser(ctx context.Context, handle func(models.StreamEvent) error) error
}

// Connector builds a Gateway bound to accessToken. An empty token yields
// an unauthenticated gateway.
type Connector func(accessToken string) Gateway

// CredentialStore persists credentials between runs. Getters return
// nil, nil on a clean miss. *state.State implements it.
type CredentialStore interface {
	GetApplication(hostname string) (*models.Application, error)
	SaveApplication(hostname string, app models.Application) error
	GetRequestToken(clientID string) (*models.Token, error)
	SaveRequestToken(clientID string, tok models.Token) error
	GetAccessToken(clientID, username string) (*models.Token, error)
	SaveAccessToken(clientID, username string, tok models.Token) error
}
