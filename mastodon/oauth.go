package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenEndpoint = "/oauth/token"

// oauthContext routes the oauth2 package through the plain client so
// the token endpoint never sees a stale bearer header.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.plain)
}

// ClientCredentialsToken obtains a token that authorizes the application
// itself (client_credentials grant).
func (c *Client) ClientCredentialsToken(ctx context.Context, clientID, clientSecret, redirect, scope string) (*models.Token, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TokenURL:       c.baseURL + tokenEndpoint,
		Scopes:         strings.Fields(scope),
		EndpointParams: url.Values{"redirect_uri": {redirect}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}

	tok, err := cfg.Token(c.oauthContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("client credentials grant: %w", tokenError(err))
	}

	return fromOAuth2(tok, scope), nil
}

// PasswordGrantToken obtains a token for a user (password grant). The
// oauth2 password flow has no redirect parameter, so redirect is not sent.
func (c *Client) PasswordGrantToken(ctx context.Context, clientID, clientSecret, redirect, username, password, scope string) (*models.Token, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	cfg := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirect,
		Scopes:       strings.Fields(scope),
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	tok, err := cfg.PasswordCredentialsToken(c.oauthContext(ctx), username, password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", tokenError(err))
	}

	return fromOAuth2(tok, scope), nil
}

// tokenError converts an oauth2 retrieve failure into an *APIError so the
// HTTP status survives. Other errors pass through.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}

	apiErr := &APIError{
		Endpoint:    tokenEndpoint,
		StatusCode:  re.Response.StatusCode,
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
	}

	if apiErr.Code == "" && gjson.ValidBytes(re.Body) {
		apiErr.Code = gjson.GetBytes(re.Body, "error").String()
		apiErr.Description = gjson.GetBytes(re.Body, "error_description").String()
	}

	return apiErr
}

func fromOAuth2(tok *oauth2.Token, requested string) *models.Token {
	out := &models.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       requested,
	}

	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		out.Scope = s
	}

	// JSON numbers decode as float64.
	if created, ok := tok.Extra("created_at").(float64); ok {
		out.CreatedAt = int64(created)
	}

	return out
}
