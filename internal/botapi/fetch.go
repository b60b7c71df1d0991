package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/goicq/internal/event"
)

// defaultTimeToNextFetch applies when the server does not say how long to wait.
const defaultTimeToNextFetch = time.Second

// FetchResult is one decoded fetchEvents batch.
type FetchResult struct {
	Events          []event.Event
	Cursor          string        // fetchBaseURL to use for the next request
	TimeToNextFetch time.Duration // minimum delay before the next request
}

type fetchData struct {
	FetchBaseURL    string            `json:"fetchBaseURL"`
	TimeToNextFetch *float64          `json:"timeToNextFetch"`
	Events          []json.RawMessage `json:"events"`
}

// FetchEvents performs one long poll. An empty cursor starts a new session;
// otherwise cursor is the fetchBaseURL returned by the previous call. The
// request may be held open by the server for up to pollTimeout.
func (c *Client) FetchEvents(ctx context.Context, cursor string, pollTimeout time.Duration) (FetchResult, error) {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	u, err := c.fetchURL(cursor, pollTimeout)
	if err != nil {
		return FetchResult{}, &TransportError{Op: "fetchEvents", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, pollTimeout+c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return FetchResult{}, &TransportError{Op: "fetchEvents", Err: err}
	}
	body, err := c.do(req, "fetchEvents")
	if err != nil {
		return FetchResult{}, err
	}
	data, err := unwrap("fetchEvents", body)
	if err != nil {
		return FetchResult{}, err
	}
	return decodeFetch(data)
}

func (c *Client) fetchURL(cursor string, pollTimeout time.Duration) (string, error) {
	var (
		u   *url.URL
		err error
	)
	if cursor == "" {
		u, err = url.Parse(c.endpoint("fetchEvents"))
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		q := u.Query()
		q.Set("first", "1")
		u.RawQuery = q.Encode()
	} else {
		u, err = url.Parse(cursor)
		if err != nil {
			return "", fmt.Errorf("parse cursor: %w", err)
		}
	}

	q := u.Query()
	q.Set("r", requestID())
	q.Set("aimsid", c.token)
	q.Set("timeout", strconv.FormatInt(pollTimeout.Milliseconds(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeFetch(raw json.RawMessage) (FetchResult, error) {
	var data fetchData
	if err := json.Unmarshal(raw, &data); err != nil {
		return FetchResult{}, &TransportError{Op: "fetchEvents", Err: fmt.Errorf("unmarshal events: %w", err)}
	}
	if data.FetchBaseURL == "" {
		return FetchResult{}, &TransportError{Op: "fetchEvents", Err: errors.New("response has no fetchBaseURL")}
	}

	res := FetchResult{
		Cursor:          data.FetchBaseURL,
		TimeToNextFetch: defaultTimeToNextFetch,
		Events:          make([]event.Event, 0, len(data.Events)),
	}
	if data.TimeToNextFetch != nil && *data.TimeToNextFetch >= 0 {
		res.TimeToNextFetch = time.Duration(*data.TimeToNextFetch * float64(time.Millisecond))
	}

	for _, rawEv := range data.Events {
		ev, err := event.Decode(rawEv)
		if err != nil {
			if errors.Is(err, event.ErrUnknownKind) {
				slog.Warn("botapi: skipping event of unknown kind", "error", err)
			} else {
				slog.Warn("botapi: skipping malformed event", "error", err)
			}
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res, nil
}
