// Package display renders side-channel payloads onto the secondary panel.
// Payloads arrive on the message bus, are turned into an HTML fragment by
// the namespace's display action and replace the panel content. Inline
// scripts of the fragment run in a sandbox.
package display

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mastrogpt/internal/bus"
)

type Relay struct {
	url     string
	client  *resty.Client
	panel   *Panel
	sandbox *Sandbox
}

type Option func(*Relay)

func WithClient(c *resty.Client) Option { return func(r *Relay) { r.client = c } }

// WithSandbox enables script execution. Without it scripts are ignored.
func WithSandbox(sb *Sandbox) Option { return func(r *Relay) { r.sandbox = sb } }

// NewRelay renders through <base>api/my/<namespace>/display into panel.
func NewRelay(base, namespace string, panel *Panel, opts ...Option) *Relay {
	r := &Relay{url: base + "api/my/" + namespace + "/display", panel: panel}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = resty.New()
	}
	return r
}

func (r *Relay) URL() string { return r.url }

func (r *Relay) Panel() *Panel { return r.panel }

// Render posts payload to the display action and updates the panel. An
// empty fragment leaves the panel unchanged; a failure shows ErrorFragment.
func (r *Relay) Render(ctx context.Context, payload json.RawMessage) {
	html, err := r.fetch(ctx, payload)
	if err != nil {
		log.Error().Err(err).Str("component", "display").Str("url", r.url).Msg("rendering failed")
		r.panel.Replace(ErrorFragment)
		return
	}
	if strings.TrimSpace(html) == "" {
		return
	}
	r.panel.Replace(html)
	r.runScripts(ctx, html)
}

func (r *Relay) fetch(ctx context.Context, payload json.RawMessage) (string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(payload)).
		Post(r.url)
	if err != nil {
		return "", errors.Wrap(err, "posting display payload")
	}
	if resp.IsError() {
		return "", errors.Errorf("display answered %s", resp.Status())
	}
	return resp.String(), nil
}

func (r *Relay) runScripts(ctx context.Context, html string) {
	if r.sandbox == nil {
		return
	}
	srcs, err := scripts(html)
	if err != nil {
		log.Warn().Err(err).Str("component", "display").Msg("cannot parse fragment for scripts")
		return
	}
	for _, src := range srcs {
		if err := r.sandbox.Run(ctx, src, r.panel); err != nil {
			log.Warn().Err(err).Str("component", "display").Msg("fragment script failed")
		}
	}
}

// Listen subscribes to side-channel payloads and renders each one until ctx
// ends. The subscription is established before Listen returns.
func (r *Relay) Listen(ctx context.Context, sub message.Subscriber) error {
	ch, err := sub.Subscribe(ctx, bus.TopicDisplay)
	if err != nil {
		return errors.Wrap(err, "subscribing to display payloads")
	}
	go func() {
		for msg := range ch {
			r.Render(ctx, json.RawMessage(msg.Payload))
			msg.Ack()
		}
	}()
	return nil
}
