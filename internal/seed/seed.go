// Package seed produces selection events whose first turn is pre-filled with
// context gathered outside the chat, such as today's calendar events.
package seed

import (
	"context"
	"encoding/json"
	"net/http/cookiejar"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mastrogpt/internal/bus"
	"mastrogpt/internal/types"
)

type Provider interface {
	Seed(ctx context.Context) (types.SelectionEvent, error)
}

// CodePrompt shows the consent URL to the user and returns the
// authorization code they paste back.
type CodePrompt func(ctx context.Context, authURL string) (string, error)

const describeEvents = "describe these events in human terms"

// Calendar runs the Google OAuth flow against the action host and seeds the
// Calendar assistant with today's events.
type Calendar struct {
	base   string
	client *resty.Client
	prompt CodePrompt
	pub    message.Publisher
}

// NewCalendar builds the provider. The client keeps the session cookie
// between calls so the token lands in the session that started the flow.
// pub may be nil, in which case nothing is sent to the display.
func NewCalendar(base string, prompt CodePrompt, pub message.Publisher) *Calendar {
	jar, _ := cookiejar.New(nil)
	client := resty.New().
		SetCookieJar(jar).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Calendar{base: base, client: client, prompt: prompt, pub: pub}
}

func (c *Calendar) action(name string) string {
	return c.base + "api/my/" + name
}

func (c *Calendar) call(ctx context.Context, name string, body, out any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		ForceContentType("application/json").
		Post(c.action(name))
	if err != nil {
		return errors.Wrapf(err, "calling %s", name)
	}
	if resp.IsError() {
		return errors.Errorf("%s returned %s: %s", name, resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func (c *Calendar) Seed(ctx context.Context) (types.SelectionEvent, error) {
	var auth struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	if err := c.call(ctx, "google/auth", map[string]any{}, &auth); err != nil {
		return types.SelectionEvent{}, err
	}

	code, err := c.prompt(ctx, auth.URL)
	if err != nil {
		return types.SelectionEvent{}, errors.Wrap(err, "reading authorization code")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return types.SelectionEvent{}, errors.New("empty authorization code")
	}

	var tok struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, "google/token", map[string]any{"code": code, "state": auth.State}, &tok); err != nil {
		return types.SelectionEvent{}, err
	}

	var listed struct {
		Events []types.CalendarEvent `json:"events"`
	}
	if err := c.call(ctx, "google/events", map[string]any{"token": tok.Token}, &listed); err != nil {
		return types.SelectionEvent{}, err
	}
	log.Info().Str("component", "seed").Int("events", len(listed.Events)).Msg("calendar events fetched")

	c.show(ctx, listed.Events)

	first, err := json.Marshal(map[string]any{
		"description": describeEvents,
		"events":      listed.Events,
	})
	if err != nil {
		return types.SelectionEvent{}, errors.Wrap(err, "encoding calendar seed")
	}
	return types.SelectionEvent{
		Name:          "Calendar",
		URL:           c.action("google/human_events"),
		CalendarEvent: string(first),
	}, nil
}

// show renders the events table and forwards it to the display. Failures
// only cost the table.
func (c *Calendar) show(ctx context.Context, events []types.CalendarEvent) {
	if c.pub == nil {
		return
	}
	if events == nil {
		events = []types.CalendarEvent{}
	}
	var rendered struct {
		Output string `json:"output"`
	}
	if err := c.call(ctx, "google/html_events", map[string]any{"events": events}, &rendered); err != nil {
		log.Warn().Err(err).Str("component", "seed").Msg("rendering events failed")
		return
	}
	if err := bus.PublishJSON(c.pub, bus.TopicDisplay, map[string]string{"html": rendered.Output}); err != nil {
		log.Warn().Err(err).Str("component", "seed").Msg("publishing events failed")
	}
}
