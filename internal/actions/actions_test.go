package actions

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/oauth2"

	"mastrogpt/internal/catalog"
	"mastrogpt/internal/store"
	"mastrogpt/internal/types"
)

type fakeAsker struct {
	role, input string
	answer      string
	err         error
}

func (f *fakeAsker) Ask(_ context.Context, role, input string) (string, error) {
	f.role, f.input = role, input
	return f.answer, f.err
}

type fakeCalendar struct {
	configured bool
	code       string
	gotToken   *oauth2.Token
	events     []types.CalendarEvent
}

func (f *fakeCalendar) Configured() bool { return f.configured }

func (f *fakeCalendar) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (f *fakeCalendar) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if code != f.code {
		return nil, errors.New("bad code")
	}
	return &oauth2.Token{AccessToken: "access-" + code, TokenType: "Bearer"}, nil
}

func (f *fakeCalendar) TodayEvents(_ context.Context, tok *oauth2.Token) ([]types.CalendarEvent, error) {
	f.gotToken = tok
	return f.events, nil
}

type fakeLister struct{ docs []bson.M }

func (f fakeLister) Users(context.Context) ([]bson.M, error) { return f.docs, nil }

type fixture struct {
	reg    *Registry
	ask    *fakeAsker
	cal    *fakeCalendar
	tokens *store.FileTokenStore
	states *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:    NewRegistry(),
		ask:    &fakeAsker{},
		cal:    &fakeCalendar{configured: true, code: "c0de"},
		tokens: store.NewFileTokenStore(filepath.Join(t.TempDir(), "tokens.json")),
		states: store.NewMemoryStore(),
	}
	Register(f.reg, Deps{
		Catalog:   catalog.Default(),
		Assistant: f.ask,
		Calendar:  f.cal,
		Tokens:    f.tokens,
		States:    f.states,
		Users:     fakeLister{docs: []bson.M{{"name": "ann"}}},
	})
	return f
}

func (f *fixture) call(t *testing.T, ctx context.Context, name string, args Args) (Result, error) {
	t.Helper()
	fn, ok := f.reg.Lookup(name)
	require.True(t, ok, name)
	return fn(ctx, args)
}

func body(t *testing.T, r Result) map[string]any {
	t.Helper()
	m, ok := r.Body.(map[string]any)
	require.True(t, ok, "body is %T", r.Body)
	return m
}

func TestRegistryNames(t *testing.T) {
	f := newFixture(t)
	names := f.reg.Names()
	for _, want := range []string{"mastrogpt/index", "mastrogpt/display", "sample/echo", "sample/reverse",
		"mastrogpt/demo", "openai/chat", "google/auth", "google/token", "google/events",
		"google/html_events", "google/human_events", "google/logout", "googlecalendar/chat", "monster/users", "examples/withreqs"} {
		require.Contains(t, names, want)
	}
}

func TestIndex(t *testing.T) {
	f := newFixture(t)
	res, err := f.call(t, context.Background(), "mastrogpt/index", nil)
	require.NoError(t, err)
	svcs := body(t, res)["services"].([]types.ServiceDescriptor)
	require.NotEmpty(t, svcs)
	require.Equal(t, "Demo", svcs[0].Name)
}

func TestEchoAndReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.call(t, ctx, "sample/echo", Args{"input": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", body(t, res)["output"])

	res, err = f.call(t, ctx, "sample/reverse", Args{"input": "abc"})
	require.NoError(t, err)
	require.Equal(t, "(0) cba", body(t, res)["output"])
	require.Equal(t, "1", body(t, res)["state"])

	res, err = f.call(t, ctx, "sample/reverse", Args{"input": "héllo", "state": "1"})
	require.NoError(t, err)
	require.Equal(t, "(1) olléh", body(t, res)["output"])
	require.Equal(t, "2", body(t, res)["state"])
}

func TestDemo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.call(t, ctx, "mastrogpt/demo", Args{})
	require.NoError(t, err)
	b := body(t, res)
	require.Contains(t, b["output"], "Welcome")
	require.Equal(t, "1", b["state"])
	require.Equal(t, "Watch here for rich output.", b["message"])

	res, err = f.call(t, ctx, "mastrogpt/demo", Args{"input": "code", "state": "1"})
	require.NoError(t, err)
	b = body(t, res)
	require.Equal(t, "python", b["language"])
	require.Equal(t, "2", b["state"])
	require.Equal(t, "You made 2 requests", b["message"])

	res, err = f.call(t, ctx, "mastrogpt/demo", Args{"input": "chess", "state": "garbage"})
	require.NoError(t, err)
	b = body(t, res)
	require.Equal(t, demoChess, b["chess"])
	require.Equal(t, "1", b["state"])

	res, err = f.call(t, ctx, "mastrogpt/demo", Args{"input": "html"})
	require.NoError(t, err)
	require.Contains(t, body(t, res)["html"], "<form")

	res, err = f.call(t, ctx, "mastrogpt/demo", Args{"input": "other"})
	require.NoError(t, err)
	require.Equal(t, "Request not supported.", body(t, res)["output"])
}

func TestExtract(t *testing.T) {
	require.Equal(t, map[string]any{"language": "python", "code": "print(1)\n"},
		Extract("Here:\n```python\nprint(1)\n```\nbye"))
	require.Equal(t, map[string]any{"html": "<p>x</p>"},
		Extract("```html\n<html><body class=\"a\"><p>x</p></body></html>\n```"))
	require.Equal(t, map[string]any{"html": "<p>y</p>\n"},
		Extract("```html\n<p>y</p>\n```"))
	require.Equal(t, map[string]any{"chess": "8/8/8/8/8/8/8/K6k w - - 0 1"},
		Extract("Position\nfen: 8/8/8/8/8/8/8/K6k w - - 0 1\nenjoy"))
	require.Empty(t, Extract("nothing to show"))
}

func TestOpenAIChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.call(t, ctx, "openai/chat", Args{"input": ""})
	require.NoError(t, err)
	require.Equal(t, "OpenAI Chat", body(t, res)["title"])
	require.Empty(t, f.ask.role)

	f.ask.answer = "Sure\n```go\nfmt.Println()\n```"
	res, err = f.call(t, ctx, "openai/chat", Args{"input": "code please"})
	require.NoError(t, err)
	b := body(t, res)
	require.Equal(t, f.ask.answer, b["output"])
	require.Equal(t, "go", b["language"])
	require.Equal(t, "chat", f.ask.role)

	f.ask.err = errors.New("quota")
	_, err = f.call(t, ctx, "openai/chat", Args{"input": "x"})
	require.Error(t, err)
}

func TestDisplay(t *testing.T) {
	f := newFixture(t)
	res, err := f.call(t, context.Background(), "mastrogpt/display", Args{"message": "hello"})
	require.NoError(t, err)
	require.Contains(t, res.Body, "hello")

	res, err = f.call(t, context.Background(), "mastrogpt/display", Args{"nothing": 1})
	require.NoError(t, err)
	require.Equal(t, "", res.Body)
}

func TestGoogleFlow(t *testing.T) {
	f := newFixture(t)
	ctx := WithSession(context.Background(), "s1")

	res, err := f.call(t, ctx, "google/auth", nil)
	require.NoError(t, err)
	state := body(t, res)["state"].(string)
	require.NotEmpty(t, state)
	require.True(t, strings.HasSuffix(body(t, res)["url"].(string), state))

	_, err = f.call(t, ctx, "google/token", Args{"code": "c0de", "state": "forged"})
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, 400, aerr.Status)

	// token exchange from another session still lands on the session that asked
	other := WithSession(context.Background(), "s2")
	res, err = f.call(t, other, "google/token", Args{"code": "c0de", "state": state})
	require.NoError(t, err)
	require.Equal(t, "ok", body(t, res)["output"])
	require.Equal(t, "access-c0de", body(t, res)["token"])
	tok, err := f.tokens.Token("s1")
	require.NoError(t, err)
	require.Equal(t, "access-c0de", tok.AccessToken)

	f.cal.events = []types.CalendarEvent{{Summary: "Standup"}}
	res, err = f.call(t, ctx, "google/events", nil)
	require.NoError(t, err)
	require.Equal(t, f.cal.events, body(t, res)["events"])
	require.Equal(t, "access-c0de", f.cal.gotToken.AccessToken)

	res, err = f.call(t, other, "google/events", Args{"token": "explicit"})
	require.NoError(t, err)
	require.Equal(t, "explicit", f.cal.gotToken.AccessToken)

	_, err = f.call(t, WithSession(context.Background(), "nobody"), "google/events", nil)
	require.ErrorAs(t, err, &aerr)
}

func TestGoogleNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.cal.configured = false
	_, err := f.call(t, context.Background(), "google/auth", nil)
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, 503, aerr.Status)

	res, err := f.call(t, context.Background(), "googlecalendar/chat", Args{"input": "events?"})
	require.NoError(t, err)
	require.Contains(t, body(t, res)["output"], "not configured")
}

func TestHTMLEvents(t *testing.T) {
	f := newFixture(t)
	res, err := f.call(t, context.Background(), "google/html_events", Args{})
	require.NoError(t, err)
	require.Contains(t, body(t, res)["output"], "No calendar events available")

	res, err = f.call(t, context.Background(), "google/html_events", Args{"events": []any{
		map[string]any{"start": "9", "end": "10", "organizer": "me", "summary": "Sync"},
	}})
	require.NoError(t, err)
	require.Contains(t, body(t, res)["output"], "<td>Sync</td>")

	_, err = f.call(t, context.Background(), "google/html_events", Args{"events": "nope"})
	require.Error(t, err)
}

func TestHumanEventsAndCalendarChat(t *testing.T) {
	f := newFixture(t)
	ctx := WithSession(context.Background(), "s1")

	f.ask.answer = "You have a standup at nine."
	res, err := f.call(t, ctx, "google/human_events", Args{"input": `{"events":[]}`})
	require.NoError(t, err)
	require.Equal(t, f.ask.answer, body(t, res)["output"])
	require.Equal(t, "calendar", f.ask.role)
	require.Equal(t, `{"events":[]}`, body(t, res)["state"])

	res, err = f.call(t, ctx, "googlecalendar/chat", Args{})
	require.NoError(t, err)
	require.Contains(t, body(t, res)["output"], "google calendar")

	res, err = f.call(t, ctx, "googlecalendar/chat", Args{"input": "show my day"})
	require.NoError(t, err)
	html := body(t, res)["html"].(string)
	require.Contains(t, html, "https://accounts.example/auth?state=")
	require.NotEmpty(t, f.states.GetOAuthState("s1"))
}

func TestHumanEventsKeepsEventsForFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := `{"description":"describe these events in human terms","events":[{"summary":"Standup"}]}`

	f.ask.answer = "Today you have a standup."
	res, err := f.call(t, ctx, "google/human_events", Args{"input": seed})
	require.NoError(t, err)
	require.Equal(t, seed, f.ask.input)
	state := body(t, res)["state"]
	require.Equal(t, seed, state)

	f.ask.answer = "At nine."
	res, err = f.call(t, ctx, "google/human_events", Args{"input": "when is my standup?", "state": state})
	require.NoError(t, err)
	require.Equal(t, "At nine.", body(t, res)["output"])
	require.Equal(t, seed, body(t, res)["state"])
	require.Contains(t, f.ask.input, "This is the message from the user: when is my standup?.")
	require.Contains(t, f.ask.input, `And these are calendar events: `+seed)

	res, err = f.call(t, ctx, "google/human_events", Args{"state": state})
	require.NoError(t, err)
	require.Equal(t, seed, body(t, res)["state"])

	f.ask.input = ""
	res, err = f.call(t, ctx, "google/human_events", Args{"input": "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", f.ask.input)
	require.NotContains(t, body(t, res), "state")
}

func TestTokenWithoutStateNeedsPendingAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := WithSession(context.Background(), "s1")

	_, err := f.call(t, ctx, "google/token", Args{"code": "c0de"})
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, 400, aerr.Status)

	_, err = f.call(t, ctx, "google/auth", nil)
	require.NoError(t, err)
	res, err := f.call(t, ctx, "google/token", Args{"code": "c0de"})
	require.NoError(t, err)
	require.Equal(t, "access-c0de", body(t, res)["token"])
	require.Empty(t, f.states.GetOAuthState("s1"))
}

func TestLogoutForgetsToken(t *testing.T) {
	f := newFixture(t)
	ctx := WithSession(context.Background(), "s1")

	_, err := f.call(t, ctx, "google/auth", nil)
	require.NoError(t, err)
	_, err = f.call(t, ctx, "google/token", Args{"code": "c0de"})
	require.NoError(t, err)
	tok, err := f.tokens.Token("s1")
	require.NoError(t, err)
	require.NotNil(t, tok)

	_, err = f.call(t, ctx, "google/auth", nil)
	require.NoError(t, err)
	res, err := f.call(t, ctx, "google/logout", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", body(t, res)["output"])

	tok, err = f.tokens.Token("s1")
	require.NoError(t, err)
	require.Nil(t, tok)
	require.Empty(t, f.states.GetOAuthState("s1"))

	_, err = f.call(t, ctx, "google/events", nil)
	require.ErrorAs(t, err, new(*Error))
}

func TestUsersAndWithReqs(t *testing.T) {
	f := newFixture(t)
	res, err := f.call(t, context.Background(), "monster/users", nil)
	require.NoError(t, err)
	b := body(t, res)
	require.Equal(t, true, b["success"])
	require.Len(t, b["data"], 1)

	r := NewRegistry()
	Register(r, Deps{Catalog: catalog.Default(), States: store.NewMemoryStore()})
	fn, _ := r.Lookup("monster/users")
	_, err = fn(context.Background(), nil)
	require.Error(t, err)

	res, err = f.call(t, context.Background(), "examples/withreqs", nil)
	require.NoError(t, err)
	require.Equal(t, "<html><head></head><body><h1>Hello, world</h1></body></html>", res.Body)
}

func TestArgs(t *testing.T) {
	a := Args{"s": "x", "n": float64(3), "m": map[string]any{"k": true}}
	require.Equal(t, "x", a.String("s"))
	require.Equal(t, "3", a.String("n"))
	require.Equal(t, `{"k":true}`, a.String("m"))
	require.Equal(t, "", a.String("missing"))
	require.True(t, a.Has("s"))
	require.False(t, a.Has("missing"))
}
