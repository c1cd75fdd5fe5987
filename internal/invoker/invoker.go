// Package invoker implements the client-side proxy for one conversational
// backend. An Invoker threads the opaque state returned by the backend into
// the next turn and forwards any extra response fields to a display sink.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mastrogpt/internal/bus"
	"mastrogpt/internal/types"
)

const (
	// UnboundWelcome is the entry message when no service is selected.
	UnboundWelcome = "Welcome, please select the chat application you want to use by choosing a service on top."
	// UnboundInstruction answers any input sent while no service is selected.
	UnboundInstruction = "No chat application selected: choose one of the services on top before sending a message."
)

// Sink receives side-channel payloads produced by a turn.
type Sink interface {
	Forward(payload types.SideChannel) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.SideChannel) error

func (f SinkFunc) Forward(p types.SideChannel) error { return f(p) }

// BusSink publishes payloads on the display topic.
func BusSink(pub message.Publisher) Sink {
	return SinkFunc(func(p types.SideChannel) error {
		return bus.PublishJSON(pub, bus.TopicDisplay, p)
	})
}

type Invoker struct {
	name   string
	url    string
	client *resty.Client
	sink   Sink

	mu    sync.Mutex
	state json.RawMessage

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Invoker)

func WithClient(c *resty.Client) Option { return func(i *Invoker) { i.client = c } }

func WithSink(s Sink) Option { return func(i *Invoker) { i.sink = s } }

// NewClient returns the HTTP client used for turns: a single attempt, no
// retries, JSON both ways.
func NewClient() *resty.Client {
	return resty.New().
		SetTimeout(90*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// New binds an Invoker to url. An empty url is the "no service selected"
// sentinel.
func New(name, url string, opts ...Option) *Invoker {
	ctx, cancel := context.WithCancel(context.Background())
	i := &Invoker{name: name, url: url, ctx: ctx, cancel: cancel}
	for _, o := range opts {
		o(i)
	}
	if i.client == nil {
		i.client = NewClient()
	}
	return i
}

func (i *Invoker) Name() string { return i.name }

func (i *Invoker) URL() string { return i.url }

func (i *Invoker) Bound() bool { return i.url != "" }

// State returns a copy of the state that will be sent with the next turn.
func (i *Invoker) State() json.RawMessage {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == nil {
		return nil
	}
	return append(json.RawMessage(nil), i.state...)
}

// Close cancels in-flight turns. Their Invoke calls still resolve, with the
// error string.
func (i *Invoker) Close() { i.cancel() }

// Done is closed once the Invoker has been replaced.
func (i *Invoker) Done() <-chan struct{} { return i.ctx.Done() }

// Invoke runs one turn. A nil input is the welcome entry action and never
// touches the network. Failures are reported as the returned text; Invoke
// never fails.
func (i *Invoker) Invoke(ctx context.Context, input *string) string {
	if input == nil {
		if i.Bound() {
			return "Welcome, you have selected service " + i.name
		}
		return UnboundWelcome
	}
	if !i.Bound() {
		return UnboundInstruction
	}

	out, err := i.turn(ctx, *input)
	if err != nil {
		log.Warn().Err(err).Str("component", "invoker").Str("service", i.name).Str("url", i.url).Msg("turn failed")
		return fmt.Sprintf("ERROR interacting with %s", i.url)
	}
	return out
}

func (i *Invoker) turn(ctx context.Context, input string) (string, error) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(i.ctx, stop)
	defer unregister()

	req := types.TurnRequest{Input: input, State: i.State()}
	resp, err := i.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(i.url)
	if err != nil {
		return "", errors.Wrap(err, "posting turn")
	}
	if resp.IsError() {
		return "", errors.Errorf("backend answered %s", resp.Status())
	}

	var fields types.SideChannel
	if err := json.Unmarshal(resp.Body(), &fields); err != nil {
		return "", errors.Wrap(err, "decoding turn response")
	}

	output := decodeOutput(fields["output"])
	i.setState(fields["state"])
	delete(fields, "output")
	delete(fields, "state")

	if len(fields) > 0 && i.sink != nil {
		if err := i.sink.Forward(fields); err != nil {
			log.Warn().Err(err).Str("component", "invoker").Str("service", i.name).Msg("side channel not forwarded")
		}
	}
	return output, nil
}

func (i *Invoker) setState(raw json.RawMessage) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		i.state = nil
		return
	}
	i.state = append(json.RawMessage(nil), raw...)
}

func decodeOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
