// Package models defines types shared across internal packages.
package models

import "time"

// Application is a client registered with an instance.
type Application struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
	Scope        string `json:"scope,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	VapidKey     string `json:"vapid_key,omitempty"`
}

// Initialized reports whether the application holds a usable client id and secret.
func (a *Application) Initialized() bool {
	return a != nil && a.ClientID != "" && a.ClientSecret != ""
}

// Token is an OAuth token issued by an instance. Request tokens and user
// access tokens share this shape.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
	CreatedAt   int64  `json:"created_at,omitempty"`
}

// Account is a user account on an instance.
type Account struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Acct           string    `json:"acct"`
	DisplayName    string    `json:"display_name"`
	URL            string    `json:"url"`
	Note           string    `json:"note,omitempty"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	StatusesCount  int       `json:"statuses_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Status is a post.
type Status struct {
	ID         string    `json:"id"`
	URI        string    `json:"uri"`
	URL        string    `json:"url,omitempty"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
	Account    Account   `json:"account"`
}

// ScheduledStatus is a post queued for later publication.
type ScheduledStatus struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Text        string    `json:"text"`
}

// StreamEvent is a single event received on a streaming connection.
// Payload is left raw since its shape depends on Event.
type StreamEvent struct {
	Stream  []string `json:"stream,omitempty"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}
