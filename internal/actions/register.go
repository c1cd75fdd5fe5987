package actions

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"mastrogpt/internal/catalog"
	"mastrogpt/internal/listing"
	"mastrogpt/internal/store"
	"mastrogpt/internal/types"
)

// Asker answers a prompt under a named assistant role.
type Asker interface {
	Ask(ctx context.Context, role, input string) (string, error)
}

// Calendar is the Google side of the calendar actions.
type Calendar interface {
	Configured() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	TodayEvents(ctx context.Context, tok *oauth2.Token) ([]types.CalendarEvent, error)
}

type Deps struct {
	Catalog   *catalog.Catalog
	Assistant Asker
	Calendar  Calendar
	Tokens    store.TokenStore
	States    *store.MemoryStore
	// Users is nil when no MongoDB is configured.
	Users listing.Lister
}

// Register installs every action on r.
func Register(r *Registry, d Deps) {
	namespaces := d.Catalog.NamespaceNames()
	for _, ns := range namespaces {
		r.Register(ns+"/index", index(d.Catalog, ns))
		r.Register(ns+"/display", display)
	}
	if _, ok := r.Lookup("mastrogpt/display"); !ok {
		r.Register("mastrogpt/display", display)
	}

	r.Register("sample/echo", echo)
	r.Register("echo", echo)
	r.Register("sample/reverse", reverse)
	r.Register("sample/hello-openai", helloOpenAI(d.Assistant))
	r.Register("mastrogpt/demo", demo)
	r.Register("openai/chat", openAIChat(d.Assistant))

	cal := &calendarActions{cal: d.Calendar, tokens: d.Tokens, states: d.States, ask: d.Assistant}
	r.Register("google/auth", cal.auth)
	r.Register("google/token", cal.token)
	r.Register("google/events", cal.events)
	r.Register("google/html_events", cal.htmlEvents)
	r.Register("google/human_events", cal.humanEvents)
	r.Register("google/logout", cal.logout)
	r.Register("googlecalendar/chat", cal.chat)

	r.Register("monster/users", users(d.Users))
	r.Register("examples/withreqs", withReqs)

	log.Info().Str("component", "actions").Strs("namespaces", namespaces).Int("actions", len(r.Names())).Msg("actions registered")
}
