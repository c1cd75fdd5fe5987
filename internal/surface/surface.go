// Package surface holds the chat session: the transcript and the single
// active Invoker slot. Turns are dispatched without blocking the caller and
// replies are appended in the order they resolve.
package surface

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mastrogpt/internal/bus"
	"mastrogpt/internal/invoker"
	"mastrogpt/internal/types"
)

// NoChatSelected is appended when the user types before choosing a service.
const NoChatSelected = "Please select a chat, choosing one of the services on the top area."

type Speaker string

const (
	Bot  Speaker = "Bot"
	User Speaker = "User"
)

// Message is one transcript entry. Seq grows monotonically within a Surface
// and survives transcript resets.
type Message struct {
	Seq     uint64
	Speaker Speaker
	Text    string
	Time    time.Time
}

type Surface struct {
	invokerOpts []invoker.Option

	mu        sync.Mutex
	messages  []Message
	seq       uint64
	active    *invoker.Invoker
	gen       uint64
	title     string
	observers []func()

	inflight sync.WaitGroup
}

// New returns an empty Surface. opts are applied to every Invoker it binds.
func New(opts ...invoker.Option) *Surface {
	return &Surface{invokerOpts: opts, title: "No Chat"}
}

// OnChange registers fn to be called after every transcript change. fn runs
// on the goroutine that made the change and must not block.
func (s *Surface) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Messages returns a snapshot of the transcript.
func (s *Surface) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Title is the name of the bound service.
func (s *Surface) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Active returns the bound Invoker, or nil.
func (s *Surface) Active() *invoker.Invoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Submit records a user turn and dispatches it. The empty string is ignored.
func (s *Surface) Submit(input string) {
	if input == "" {
		return
	}

	s.mu.Lock()
	s.appendLocked(User, input)
	inv, gen := s.active, s.gen
	if inv == nil {
		s.appendLocked(Bot, NoChatSelected)
	}
	s.mu.Unlock()
	s.notify()

	if inv == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		out := inv.Invoke(context.Background(), &input)
		s.appendIfCurrent(gen, out)
	}()
}

// Select replaces the active Invoker, resets the transcript and appends the
// welcome. The welcome turn sends the calendar event when the selection
// carries one.
func (s *Surface) Select(ctx context.Context, ev types.SelectionEvent) {
	inv := invoker.New(ev.Name, ev.URL, s.invokerOpts...)

	s.mu.Lock()
	old := s.active
	s.active = inv
	s.gen++
	gen := s.gen
	s.messages = nil
	s.title = ev.Name
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Info().Str("component", "surface").Str("service", ev.Name).Str("url", ev.URL).Msg("service selected")
	s.notify()

	var first *string
	if ev.CalendarEvent != "" {
		first = &ev.CalendarEvent
	}
	s.appendIfCurrent(gen, inv.Invoke(ctx, first))
}

// Wait blocks until every dispatched turn has resolved.
func (s *Surface) Wait() { s.inflight.Wait() }

// Listen subscribes to selection events and applies them until ctx ends.
// The subscription is established before Listen returns.
func (s *Surface) Listen(ctx context.Context, sub message.Subscriber) error {
	ch, err := sub.Subscribe(ctx, bus.TopicSelect)
	if err != nil {
		return errors.Wrap(err, "subscribing to selections")
	}
	go func() {
		for msg := range ch {
			var ev types.SelectionEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Str("component", "surface").Msg("dropping malformed selection")
				msg.Ack()
				continue
			}
			s.Select(ctx, ev)
			msg.Ack()
		}
	}()
	return nil
}

// Close releases the active Invoker.
func (s *Surface) Close() {
	s.mu.Lock()
	inv := s.active
	s.active = nil
	s.gen++
	s.mu.Unlock()
	if inv != nil {
		inv.Close()
	}
}

func (s *Surface) appendIfCurrent(gen uint64, text string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.Debug().Str("component", "surface").Msg("dropping reply from replaced service")
		return
	}
	s.appendLocked(Bot, text)
	s.mu.Unlock()
	s.notify()
}

func (s *Surface) appendLocked(who Speaker, text string) {
	s.seq++
	s.messages = append(s.messages, Message{Seq: s.seq, Speaker: who, Text: text, Time: time.Now()})
}

func (s *Surface) notify() {
	s.mu.Lock()
	obs := append([]func(){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range obs {
		fn()
	}
}
