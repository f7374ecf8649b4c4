package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	streamingEndpoint = "/api/v1/streaming"

	// streamReadLimit caps a single streaming frame. Status payloads with
	// long content and many mentions stay well under this.
	streamReadLimit = 1024 * 1024
)

// ErrStreamUnauthorized is returned when StreamUser is called on a
// client without a bearer token.
var ErrStreamUnauthorized = errors.New("streaming requires an access token")

// wsConn abstracts the WebSocket connection so the reader can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// streamURL maps the REST base URL onto the websocket scheme.
func (c *Client) streamURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u + streamingEndpoint + "?stream=user"
}

// StreamUser connects to the user stream and calls handle for every event
// until ctx is cancelled, the server closes the stream, or handle returns
// an error. A cancelled ctx is not reported as an error.
func (c *Client) StreamUser(ctx context.Context, handle func(models.StreamEvent) error) error {
	if c.token == "" {
		return ErrStreamUnauthorized
	}

	if err := c.wait(ctx); err != nil {
		return err
	}

	conn, resp, err := websocket.Dial(ctx, c.streamURL(), &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPClient: c.plain,
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.token},
			"User-Agent":    []string{userAgent},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return fmt.Errorf("dialing stream: %w", &APIError{Endpoint: streamingEndpoint, StatusCode: resp.StatusCode})
		}

		return fmt.Errorf("dialing stream: %w", err)
	}

	return readEvents(ctx, conn, handle)
}

// readEvents consumes frames from conn until it fails. Frames that are
// not JSON objects with an event name are skipped.
func readEvents(ctx context.Context, conn wsConn, handle func(models.StreamEvent) error) error {
	conn.SetReadLimit(streamReadLimit)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "")

			if ctx.Err() != nil {
				return nil
			}

			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}

			return fmt.Errorf("reading stream: %w", err)
		}

		if typ != websocket.MessageText {
			continue
		}

		ev, ok := parseEvent(data)
		if !ok {
			continue
		}

		if err := handle(ev); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

func parseEvent(data []byte) (models.StreamEvent, bool) {
	if !gjson.ValidBytes(data) {
		return models.StreamEvent{}, false
	}

	event := gjson.GetBytes(data, "event").String()
	if event == "" {
		return models.StreamEvent{}, false
	}

	ev := models.StreamEvent{
		Event:   event,
		Payload: gjson.GetBytes(data, "payload").String(),
	}

	for _, s := range gjson.GetBytes(data, "stream").Array() {
		ev.Stream = append(ev.Stream, s.String())
	}

	return ev, true
}
