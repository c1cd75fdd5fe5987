package actions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mastrogpt/internal/assistant"
	"mastrogpt/internal/catalog"
	"mastrogpt/internal/render"
)

func echo(_ context.Context, args Args) (Result, error) {
	return JSON(map[string]any{"output": args.String("input")}), nil
}

// reverse answers with the input reversed, prefixed by the number of turns
// seen so far in this conversation.
func reverse(_ context.Context, args Args) (Result, error) {
	n, err := strconv.Atoi(args.String("state"))
	if err != nil || n < 0 {
		n = 0
	}
	in := []rune(args.String("input"))
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
	return JSON(map[string]any{
		"output": fmt.Sprintf("(%d) %s", n, string(in)),
		"state":  strconv.Itoa(n + 1),
	}), nil
}

func helloOpenAI(ask Asker) Func {
	return func(ctx context.Context, args Args) (Result, error) {
		out, err := ask.Ask(ctx, assistant.RoleCode, args.String("input"))
		if err != nil {
			return Result{}, err
		}
		return JSON(map[string]any{"output": out}), nil
	}
}

func index(c *catalog.Catalog, namespace string) Func {
	return func(context.Context, Args) (Result, error) {
		svcs, _ := c.Services(namespace)
		return JSON(map[string]any{"services": svcs}), nil
	}
}

func display(_ context.Context, args Args) (Result, error) {
	out, err := render.Render(args)
	if err != nil {
		return Result{}, err
	}
	return HTML(out), nil
}

// withReqs builds a minimal page with the html node API.
func withReqs(context.Context, Args) (Result, error) {
	h1 := &html.Node{Type: html.ElementNode, Data: "h1", DataAtom: atom.H1}
	h1.AppendChild(&html.Node{Type: html.TextNode, Data: "Hello, world"})
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	body.AppendChild(h1)
	root := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	root.AppendChild(&html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head})
	root.AppendChild(body)

	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		return Result{}, err
	}
	return HTML(b.String()), nil
}
