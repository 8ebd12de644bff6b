// Package client implements the device-side half of the sync protocol: a
// local event cache with optimistic projection, an HTTP/websocket transport,
// and a coordinator that pushes local mutations and pulls remote events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/meshline/syncd/pkg/types"
)

// Transport moves events between the local cache and the server. Push and
// Pull are request/response; Watch is the optional realtime feed.
type Transport interface {
	// Push sends client events and returns them with server-assigned seq.
	Push(ctx context.Context, events []*types.Event) ([]*types.Event, error)

	// Pull returns server events with seq > since, ascending, up to limit.
	Pull(ctx context.Context, since int64, limit int) ([]*types.Event, error)

	// Watch streams server events to handler until ctx is cancelled or the
	// connection fails. Delivery is at-least-once and unordered.
	Watch(ctx context.Context, handler func([]*types.Event)) error
}

// StatusError is a non-2xx server response. 4xx responses are terminal:
// retrying a rejected event cannot succeed.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Terminal reports whether retrying is pointless.
func (e *StatusError) Terminal() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsTerminal reports whether err is a failure that must not be retried
// (validation and auth rejections).
func IsTerminal(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Terminal()
	}
	return errors.Is(err, types.ErrValidation) || errors.Is(err, types.ErrAuth)
}

// eventsEnvelope matches the server's wire shape.
type eventsEnvelope struct {
	Events []*types.Event `json:"events"`
}

// HTTPTransport talks to the event endpoints with a bearer credential.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
	dialer  *websocket.Dialer
}

// NewHTTPTransport creates a transport for the given server base URL.
// A nil httpClient uses http.DefaultClient.
func NewHTTPTransport(baseURL, token string, httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  httpClient,
		dialer:  websocket.DefaultDialer,
	}
}

// Push implements Transport.
func (t *HTTPTransport) Push(ctx context.Context, events []*types.Event) ([]*types.Event, error) {
	body, err := json.Marshal(eventsEnvelope{Events: events})
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out eventsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	return out.Events, nil
}

// Pull implements Transport.
func (t *HTTPTransport) Pull(ctx context.Context, since int64, limit int) ([]*types.Event, error) {
	u := t.baseURL + "/events?since=" + strconv.FormatInt(since, 10)
	if limit > 0 {
		u += "&limit=" + strconv.Itoa(limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out eventsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pull response: %w", err)
	}
	return out.Events, nil
}

// Watch implements Transport over a websocket connection to /events/watch.
func (t *HTTPTransport) Watch(ctx context.Context, handler func([]*types.Event)) error {
	u, err := url.Parse(t.baseURL + "/events/watch")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.token)

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return statusError(resp)
		}
		return fmt.Errorf("%w: %s", types.ErrNetwork, err)
	}
	defer conn.Close()

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", types.ErrNetwork, err)
		}
		var env eventsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Unknown frames are skipped, not fatal.
			continue
		}
		handler(env.Events)
	}
}

// statusError converts a non-2xx response into a StatusError, extracting the
// structured error message when present.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}
