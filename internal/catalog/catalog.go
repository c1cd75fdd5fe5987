// Package catalog lists the chat services published by each namespace's
// discovery action.
package catalog

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"mastrogpt/internal/types"
)

type Catalog struct {
	Namespaces map[string][]types.ServiceDescriptor `yaml:"namespaces"`
}

// Default is used when no catalog file exists.
func Default() *Catalog {
	return &Catalog{Namespaces: map[string][]types.ServiceDescriptor{
		"mastrogpt": {
			{Name: "Demo", URL: "mastrogpt/demo"},
			{Name: "Echo", URL: "sample/echo"},
			{Name: "Reverse", URL: "sample/reverse"},
			{Name: "OpenAI", URL: "openai/chat"},
			{Name: "HelloOpenAI", URL: "sample/hello-openai"},
			{Name: "Calendar", URL: "googlecalendar/chat"},
		},
	}}
}

// Load reads a YAML catalog. A missing file yields Default.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("component", "catalog").Str("path", path).Msg("no catalog file, using defaults")
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "reading catalog %s", path)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "parsing catalog %s", path)
	}
	if len(c.Namespaces) == 0 {
		return nil, errors.Errorf("catalog %s declares no namespaces", path)
	}
	return &c, nil
}

func (c *Catalog) Services(namespace string) ([]types.ServiceDescriptor, bool) {
	s, ok := c.Namespaces[namespace]
	return s, ok
}

func (c *Catalog) NamespaceNames() []string {
	out := make([]string, 0, len(c.Namespaces))
	for ns := range c.Namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
