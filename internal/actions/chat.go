package actions

import (
	"context"
	"regexp"
	"strings"

	"mastrogpt/internal/assistant"
)

var (
	fencePattern = regexp.MustCompile("(?s)```(\\w+)\\n(.*?)```")
	bodyPattern  = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	fenPattern   = regexp.MustCompile(`(?i)FEN:\s*([^\n]+)`)
)

// Extract finds displayable content in an assistant answer: the first
// fenced block (html keeps only the body) or else a FEN position.
func Extract(text string) map[string]any {
	res := map[string]any{}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		lang, code := m[1], m[2]
		if strings.EqualFold(lang, "html") {
			if b := bodyPattern.FindStringSubmatch(code); b != nil {
				code = b[1]
			}
			res["html"] = code
			return res
		}
		res["language"] = lang
		res["code"] = code
		return res
	}
	if m := fenPattern.FindStringSubmatch(text); m != nil {
		res["chess"] = strings.TrimSpace(m[1])
	}
	return res
}

func openAIChat(ask Asker) Func {
	return func(ctx context.Context, args Args) (Result, error) {
		input := args.String("input")
		if input == "" {
			return JSON(map[string]any{
				"output":  "Welcome to the OpenAI demo chat",
				"title":   "OpenAI Chat",
				"message": "You can chat with OpenAI.",
			}), nil
		}
		answer, err := ask.Ask(ctx, assistant.RoleChat, input)
		if err != nil {
			return Result{}, err
		}
		res := Extract(answer)
		res["output"] = answer
		return JSON(res), nil
	}
}
