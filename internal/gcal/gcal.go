// Package gcal wraps the Google OAuth code flow and the Calendar API calls
// used by the calendar actions.
package gcal

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"mastrogpt/internal/types"
)

type Client struct {
	oauth    *oauth2.Config
	http     *http.Client
	endpoint string
	now      func() time.Time
}

type Option func(*Client)

// WithEndpoint points the Calendar API at another base URL.
func WithEndpoint(url string) Option { return func(c *Client) { c.endpoint = url } }

// WithClock fixes the notion of "today".
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithOAuthEndpoint replaces the Google token endpoints.
func WithOAuthEndpoint(ep oauth2.Endpoint) Option { return func(c *Client) { c.oauth.Endpoint = ep } }

func New(clientID, clientSecret, redirectURL string, scopes []string, opts ...Option) *Client {
	if len(scopes) == 0 {
		scopes = []string{calendar.CalendarScope}
	}
	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 5 * time.Second
	retry.Logger = nil

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		http: retry.StandardClient(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether OAuth credentials were provided.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthURL is the consent page the user visits to obtain a code.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.withHTTP(ctx), code)
	if err != nil {
		return nil, errors.Wrap(err, "exchanging authorization code")
	}
	return tok, nil
}

// TodayEvents lists the primary calendar's events from local midnight to
// the next one.
func (c *Client) TodayEvents(ctx context.Context, tok *oauth2.Token) ([]types.CalendarEvent, error) {
	opts := []option.ClientOption{option.WithHTTPClient(c.oauth.Client(c.withHTTP(ctx), tok))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating calendar service")
	}

	now := c.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	list, err := svc.Events.List("primary").
		Context(ctx).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	events := Reduce(list.Items)
	log.Info().Str("component", "gcal").Int("events", len(events)).Msg("events fetched")
	return events, nil
}

func (c *Client) withHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// Reduce keeps the fields shown to users. All-day events carry a date
// instead of a date-time.
func Reduce(items []*calendar.Event) []types.CalendarEvent {
	out := make([]types.CalendarEvent, 0, len(items))
	for _, it := range items {
		ev := types.CalendarEvent{Summary: it.Summary}
		if it.Start != nil {
			ev.Start = when(it.Start)
		}
		if it.End != nil {
			ev.End = when(it.End)
		}
		if it.Organizer != nil {
			ev.Organizer = it.Organizer.Email
			if it.Organizer.DisplayName != "" {
				ev.Organizer = it.Organizer.DisplayName
			}
		}
		out = append(out, ev)
	}
	return out
}

func when(dt *calendar.EventDateTime) string {
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}
