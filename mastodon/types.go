package mastodon

import (
	"time"

	"github.com/alexjbarnes/fedi-client/internal/models"
)

// CreateAppRequest is the payload for POST /api/v1/apps.
type CreateAppRequest struct {
	ClientName   string `json:"client_name"`
	RedirectURIs string `json:"redirect_uris"`
	Scopes       string `json:"scopes"`
	Website      string `json:"website,omitempty"`
}

// RegisterRequest is the payload for POST /api/v1/accounts.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Agreement bool   `json:"agreement"`
	Locale    string `json:"locale"`
	Reason    string `json:"reason,omitempty"`
}

// PostStatusRequest is the payload for POST /api/v1/statuses. A non-empty
// ScheduledAt turns the post into a scheduled status.
type PostStatusRequest struct {
	Status      string `json:"status"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

// scheduledStatusResponse is returned from POST /api/v1/statuses when
// scheduled_at is set.
type scheduledStatusResponse struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Params      struct {
		Text string `json:"text"`
	} `json:"params"`
}

func (r scheduledStatusResponse) model() *models.ScheduledStatus {
	return &models.ScheduledStatus{
		ID:          r.ID,
		ScheduledAt: r.ScheduledAt,
		Text:        r.Params.Text,
	}
}
