// Package selector discovers the chat services published under a namespace
// and announces the user's choice to the chat surface.
package selector

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mastrogpt/internal/bus"
	"mastrogpt/internal/types"
)

type Selector struct {
	base      string
	namespace string
	client    *resty.Client
	pub       message.Publisher
}

// New builds a Selector. base must end with a slash.
func New(base, namespace string, client *resty.Client, pub message.Publisher) *Selector {
	if client == nil {
		client = resty.New()
	}
	return &Selector{base: base, namespace: namespace, client: client, pub: pub}
}

// IndexURL is the discovery endpoint of the namespace.
func (s *Selector) IndexURL() string {
	return s.base + "api/my/" + s.namespace + "/index"
}

// Discover fetches the service list and resolves every URL against the
// action base. A failure yields no services at all.
func (s *Selector) Discover(ctx context.Context) ([]types.ServiceDescriptor, error) {
	var index types.ServiceIndex
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&index).
		ForceContentType("application/json").
		Get(s.IndexURL())
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", s.IndexURL())
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetching %s: %s", s.IndexURL(), resp.Status())
	}

	services := make([]types.ServiceDescriptor, 0, len(index.Services))
	for _, svc := range index.Services {
		services = append(services, types.ServiceDescriptor{Name: svc.Name, URL: s.Resolve(svc.URL)})
	}
	log.Info().Str("component", "selector").Str("namespace", s.namespace).Int("services", len(services)).Msg("services discovered")
	return services, nil
}

// Resolve maps a listed service URL to the address turns are posted to.
func (s *Selector) Resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return s.base + "api/my/" + strings.TrimPrefix(url, "/")
}

// Select announces svc to the chat surface.
func (s *Selector) Select(svc types.ServiceDescriptor) error {
	return s.Announce(types.SelectionEvent{Name: svc.Name, URL: svc.URL})
}

// Announce publishes a prepared selection, such as one carrying a calendar
// event.
func (s *Selector) Announce(ev types.SelectionEvent) error {
	if err := bus.PublishJSON(s.pub, bus.TopicSelect, ev); err != nil {
		return errors.Wrapf(err, "selecting %s", ev.Name)
	}
	return nil
}
