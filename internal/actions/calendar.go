package actions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"mastrogpt/internal/assistant"
	"mastrogpt/internal/render"
	"mastrogpt/internal/store"
	"mastrogpt/internal/types"
)

var authButton = template.Must(template.New("auth").Parse(`<h1>Please visit this link to initiate Google authorization</h1>
<div>
  <a href="{{.}}" target="_blank"><button type="button">Start</button></a>
</div>
`))

type calendarActions struct {
	cal    Calendar
	tokens store.TokenStore
	states *store.MemoryStore
	ask    Asker
}

func (c *calendarActions) configured() error {
	if c.cal == nil || !c.cal.Configured() {
		return Unavailable("google oauth not configured")
	}
	return nil
}

// startAuth remembers a fresh state for the session and returns the consent
// URL carrying it.
func (c *calendarActions) startAuth(ctx context.Context) (string, string) {
	state := randomState()
	c.states.SetOAuthState(SessionID(ctx), state)
	return c.cal.AuthURL(state), state
}

// google/auth returns { url, state }.
func (c *calendarActions) auth(ctx context.Context, _ Args) (Result, error) {
	if err := c.configured(); err != nil {
		return Result{}, err
	}
	url, state := c.startAuth(ctx)
	return JSON(map[string]any{"url": url, "state": state}), nil
}

// google/token exchanges the code and keeps the token for the session that
// started the flow.
func (c *calendarActions) token(ctx context.Context, args Args) (Result, error) {
	if err := c.configured(); err != nil {
		return Result{}, err
	}
	code := strings.TrimSpace(args.String("code"))
	if code == "" {
		return Result{}, BadRequest("missing code")
	}
	sid := SessionID(ctx)
	if state := args.String("state"); state != "" {
		sid = c.states.GetSessionByOAuthState(state)
		if sid == "" {
			return Result{}, BadRequest("invalid oauth state")
		}
	} else if c.states.GetOAuthState(sid) == "" {
		return Result{}, BadRequest("no authorization in progress for this session")
	}

	tok, err := c.cal.Exchange(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if err := c.tokens.SaveToken(sid, tok); err != nil {
		return Result{}, errors.Wrap(err, "token persist failed")
	}
	c.states.ClearOAuthState(sid)
	log.Info().Str("component", "actions").Str("session", sid).Msg("google token stored")
	return JSON(map[string]any{"output": "ok", "token": tok.AccessToken}), nil
}

// google/events lists today's events, using the token argument when given
// and the session's stored token otherwise.
func (c *calendarActions) events(ctx context.Context, args Args) (Result, error) {
	if c.cal == nil {
		return Result{}, Unavailable("google calendar not configured")
	}
	var tok *oauth2.Token
	if access := args.String("token"); access != "" {
		tok = &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	} else {
		var err error
		if tok, err = c.tokens.Token(SessionID(ctx)); err != nil {
			return Result{}, err
		}
	}
	if tok == nil {
		return Result{}, BadRequest("no google token for this session, authorize first")
	}

	events, err := c.cal.TodayEvents(ctx, tok)
	if err != nil {
		return Result{}, err
	}
	return JSON(map[string]any{"events": events}), nil
}

// google/html_events renders { events } as a table.
func (c *calendarActions) htmlEvents(_ context.Context, args Args) (Result, error) {
	var events []types.CalendarEvent
	if args.Has("events") {
		if err := args.Decode("events", &events); err != nil {
			return Result{}, BadRequest("invalid events: %v", err)
		}
	}
	out, err := render.Events(events)
	if err != nil {
		return Result{}, err
	}
	return JSON(map[string]any{"output": out}), nil
}

// google/human_events describes calendar events in human terms. A seed turn
// carries the events as input; they are returned as the conversation state so
// that every later question is asked together with them.
func (c *calendarActions) humanEvents(ctx context.Context, args Args) (Result, error) {
	input := args.String("input")
	events := args.String("state")
	prompt := input
	switch {
	case input == "":
		res := map[string]any{"output": "Send me your calendar events and I will describe them."}
		if events != "" {
			res["state"] = events
		}
		return JSON(res), nil
	case isEventsSeed(input):
		events = input
	case events != "":
		prompt = fmt.Sprintf(followUpPrompt, input, events)
	}

	out, err := c.ask.Ask(ctx, assistant.RoleCalendar, prompt)
	if err != nil {
		return Result{}, err
	}
	res := map[string]any{"output": out}
	if events != "" {
		res["state"] = events
	}
	return JSON(res), nil
}

const followUpPrompt = `This is the message from the user: %s.
And these are calendar events: %s.
Answer to the user with calendar info only if he/she asks for it.`

func isEventsSeed(input string) bool {
	var seed struct {
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal([]byte(input), &seed); err != nil {
		return false
	}
	return len(seed.Events) > 0
}

// google/logout forgets the session's token and any pending authorization.
func (c *calendarActions) logout(ctx context.Context, _ Args) (Result, error) {
	sid := SessionID(ctx)
	if err := c.tokens.DeleteToken(sid); err != nil {
		return Result{}, errors.Wrap(err, "token delete failed")
	}
	c.states.ClearOAuthState(sid)
	log.Info().Str("component", "actions").Str("session", sid).Msg("google token removed")
	return JSON(map[string]any{"output": "ok"}), nil
}

// googlecalendar/chat welcomes the user, then answers any input with the
// authorization button.
func (c *calendarActions) chat(ctx context.Context, args Args) (Result, error) {
	if args.String("input") == "" {
		return JSON(map[string]any{
			"output":  "Welcome to the OpenAI demo chat for google calendar",
			"title":   "OpenAI Chat",
			"message": "You can chat with OpenAI and ask to describe your today events on google calendar.",
		}), nil
	}
	if err := c.configured(); err != nil {
		return JSON(map[string]any{"output": "Google Calendar is not configured on this server."}), nil
	}
	url, _ := c.startAuth(ctx)
	var b strings.Builder
	if err := authButton.Execute(&b, url); err != nil {
		return Result{}, err
	}
	return JSON(map[string]any{
		"output": "click on the button on the right to authenticate",
		"title":  "OpenAI Chat",
		"html":   b.String(),
	}), nil
}

func randomState() string {
	var b [24]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
