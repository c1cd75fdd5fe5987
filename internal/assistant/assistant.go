// Package assistant asks an OpenAI chat model on behalf of the chat actions.
// Each action uses a named role whose system prompt and sampling settings
// come from a YAML prompt file.
package assistant

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

const (
	RoleChat     = "chat"
	RoleCode     = "code"
	RoleCalendar = "calendar"
)

// Completer is the subset of *openai.Client used here.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Role struct {
	System      string  `yaml:"system"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type Spec struct {
	Roles map[string]Role `yaml:"roles"`
}

// DefaultSpec is used when no prompt file exists.
func DefaultSpec() Spec {
	return Spec{Roles: map[string]Role{
		RoleChat: {System: `When requested to write code, pick Python.
When requested to show chess position, always use the FEN notation.
When you show a FEN string, always start it with "FEN:" in upper case and end with a newline.
When requested to show HTML always include what is in the body tag,
but exclude the boilerplate code surrounding the body tag.`},
		RoleCode:     {System: "You are a code assistant skilled in python."},
		RoleCalendar: {System: "You are an assistant that reads calendar events sent by the user and describes them in human terms."},
	}}
}

type Assistant struct {
	spec   Spec
	client Completer
	model  string
}

func New(spec Spec, client Completer, model string) *Assistant {
	return &Assistant{spec: spec, client: client, model: model}
}

// Load reads the prompt file at path; a missing file yields DefaultSpec.
// Roles absent from the file keep their defaults.
func Load(path string, client Completer, model string) (*Assistant, error) {
	spec := DefaultSpec()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(spec, client, model), nil
		}
		return nil, errors.Wrapf(err, "reading prompts %s", path)
	}
	var fromFile Spec
	if err := yaml.Unmarshal(b, &fromFile); err != nil {
		return nil, errors.Wrapf(err, "parsing prompts %s", path)
	}
	for name, r := range fromFile.Roles {
		spec.Roles[name] = r
	}
	return New(spec, client, model), nil
}

// Ask sends input under the system prompt of role and returns the first
// choice.
func (a *Assistant) Ask(ctx context.Context, role, input string) (string, error) {
	r, ok := a.spec.Roles[role]
	if !ok {
		return "", errors.Errorf("unknown assistant role %q", role)
	}
	if a.client == nil {
		return "", errors.New("assistant is not configured")
	}
	model := r.Model
	if model == "" {
		model = a.model
	}
	temp := r.Temperature
	if temp <= 0 {
		temp = 0.7
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temp,
		MaxTokens:   r.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: strings.TrimSpace(r.System)},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "asking %s assistant", role)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices")
	}
	log.Debug().Str("component", "assistant").Str("role", role).Str("model", model).Int("tokens", resp.Usage.TotalTokens).Msg("completion")
	return resp.Choices[0].Message.Content, nil
}
