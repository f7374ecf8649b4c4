package session

import (
	"context"
	"log/slog"
	"math"
	"time"

	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/sosodev/duration"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
)

// maxDelaySeconds is the largest delay a time.Duration can hold.
var maxDelaySeconds = math.MaxInt64 / float64(time.Second)

// parseDelay parses an ISO 8601 duration such as "PT30M" or "P1DT2H".
// Only day and time components are accepted.
func parseDelay(iso string) (time.Duration, error) {
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, &apperr.ValidationError{
			Field:  "delay",
			Detail: err.Error(),
			Err:    apperr.ErrInvalidDuration,
		}
	}

	if d.Years != 0 || d.Months != 0 || d.Weeks != 0 {
		return 0, &apperr.ValidationError{
			Field:  "delay",
			Detail: iso + " uses calendar units; use days or smaller",
			Err:    apperr.ErrInvalidDuration,
		}
	}

	secs := d.Days*secondsPerDay + d.Hours*secondsPerHour + d.Minutes*secondsPerMinute + d.Seconds
	if secs >= maxDelaySeconds {
		return 0, &apperr.ValidationError{
			Field:  "delay",
			Detail: iso + " is out of range",
			Err:    apperr.ErrInvalidDuration,
		}
	}

	td := d.ToTimeDuration()
	if td <= 0 {
		return 0, &apperr.ValidationError{
			Field:  "delay",
			Detail: iso + " is not positive",
			Err:    apperr.ErrInvalidDuration,
		}
	}

	return td, nil
}

// ScheduleStatusAfterDelay schedules text for publication once delay (an
// ISO 8601 duration) has passed.
func (s *Session) ScheduleStatusAfterDelay(ctx context.Context, text, delay string) (*models.ScheduledStatus, error) {
	if err := s.ensureLogin("schedule status"); err != nil {
		return nil, err
	}

	if err := checkStatusText(text); err != nil {
		return nil, err
	}

	d, err := parseDelay(delay)
	if err != nil {
		return nil, err
	}

	at := s.now().Add(d).UTC()
	s.log.Debug("scheduling status", slog.Time("scheduled_at", at))

	gw := s.authed

	return execute(ctx, s.log, "ScheduleStatus", func(ctx context.Context) (*models.ScheduledStatus, error) {
		return gw.ScheduleStatus(ctx, text, at)
	})
}
