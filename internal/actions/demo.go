package actions

import (
	"context"
	"fmt"
	"strconv"
)

const demoChess = "r1bk3r/p2pBpNp/n4n2/1p1NP2P/6P1/3P4/P1P1K3/q5b1"

const demoCode = `
for i in range(1,10):
    print(i)
`

const demoHTML = `
<form action="/submit-your-form-endpoint" method="post">
  <div>
    <label for="username">Username:</label>
    <input type="text" id="username" name="username" required>
  </div>
  <div>
    <label for="password">Password:</label>
    <input type="password" id="password" name="password" required>
  </div>
  <div>
    <button type="submit">Login</button>
  </div>
</form>
`

// demo shows every kind of side-channel output. Its state counts requests.
func demo(_ context.Context, args Args) (Result, error) {
	counter := 1
	if n, err := strconv.Atoi(args.String("state")); err == nil {
		counter = n + 1
	}

	res := map[string]any{
		"title":   "MastroGPT Demo",
		"message": fmt.Sprintf("You made %d requests", counter),
		"state":   strconv.Itoa(counter),
	}
	switch input := args.String("input"); input {
	case "":
		res["output"] = "Welcome, this is MastroGPT demo chat.\nPlease try asking for code, chess, html."
		res["message"] = "Watch here for rich output."
	case "code":
		res["code"] = demoCode
		res["language"] = "python"
		res["output"] = "Here is some python code.\n```python\n" + demoCode + "\n```"
	case "chess":
		res["chess"] = demoChess
		res["output"] = "Check this chess position.\n```fen\n" + demoChess + "\n```"
	case "html":
		res["html"] = demoHTML
		res["output"] = "Here is some HTML.\n```html\n" + demoHTML + "\n```"
	default:
		res["output"] = "Request not supported."
	}
	return JSON(res), nil
}
