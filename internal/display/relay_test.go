package display

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastrogpt/internal/bus"
	"mastrogpt/internal/invoker"
)

func displayServer(t *testing.T, fn func(body string) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/my/mastrogpt/display", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		code, out := fn(string(body))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(out))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderReplacesPanel(t *testing.T) {
	srv := displayServer(t, func(body string) (int, string) {
		require.JSONEq(t, `{"html":"<b>x</b>"}`, body)
		return http.StatusOK, "<div><b>x</b></div>"
	})
	r := NewRelay(srv.URL+"/", "mastrogpt", NewPanel())
	r.Render(context.Background(), json.RawMessage(`{"html":"<b>x</b>"}`))
	require.Equal(t, "<div><b>x</b></div>", r.Panel().HTML())
}

func TestEmptyRenderLeavesPanelUnchanged(t *testing.T) {
	srv := displayServer(t, func(string) (int, string) { return http.StatusNoContent, "" })
	panel := NewPanel()
	panel.Replace("<p>before</p>")
	r := NewRelay(srv.URL+"/", "mastrogpt", panel)
	r.Render(context.Background(), json.RawMessage(`{"unknown":1}`))
	require.Equal(t, "<p>before</p>", panel.HTML())
}

func TestRenderFailureShowsErrorFragment(t *testing.T) {
	srv := displayServer(t, func(string) (int, string) { return http.StatusInternalServerError, "boom" })
	panel := NewPanel()
	panel.Replace("<p>before</p>")
	NewRelay(srv.URL+"/", "mastrogpt", panel).Render(context.Background(), json.RawMessage(`{}`))
	require.Equal(t, ErrorFragment, panel.HTML())
}

func TestScriptsRunInSandbox(t *testing.T) {
	srv := displayServer(t, func(string) (int, string) {
		return http.StatusOK, `<p>one</p><script>console.log("hi"); display.replace(display.html().replace("one", "two"));</script>`
	})
	panel := NewPanel()
	r := NewRelay(srv.URL+"/", "mastrogpt", panel, WithSandbox(NewSandbox(time.Second)))
	r.Render(context.Background(), json.RawMessage(`{"html":"x"}`))
	require.Contains(t, panel.HTML(), "<p>two</p>")
}

func TestSandboxRestrictions(t *testing.T) {
	sb := NewSandbox(100 * time.Millisecond)
	panel := NewPanel()

	require.Error(t, sb.Run(context.Background(), `require("fs")`, panel))
	require.Error(t, sb.Run(context.Background(), `process.exit(1)`, panel))

	start := time.Now()
	err := sb.Run(context.Background(), `for(;;){}`, panel)
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestFragmentText(t *testing.T) {
	text := FragmentText(`<div><h1>Title</h1><p>Hello <b>world</b></p><script>x()</script><table><tr><td>a</td><td>b</td></tr></table></div>`)
	require.Equal(t, "Title\nHello world\na | b", text)
}

func TestSideChannelFlowsFromInvokerToPanel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/my/demo":
			_, _ = w.Write([]byte(`{"output":"see display","message":"hi there"}`))
		case "/api/my/mastrogpt/display":
			body, _ := io.ReadAll(r.Body)
			require.JSONEq(t, `{"message":"hi there"}`, string(body))
			_, _ = w.Write([]byte(`<p>hi there</p>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	base := srv.URL + "/"

	b, err := bus.New(bus.Settings{})
	require.NoError(t, err)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panel := NewPanel()
	require.NoError(t, NewRelay(base, "mastrogpt", panel).Listen(ctx, b.Subscriber))

	inv := invoker.New("Demo", base+"api/my/demo", invoker.WithSink(invoker.BusSink(b.Publisher)))
	in := "message"
	require.Equal(t, "see display", inv.Invoke(ctx, &in))

	require.Eventually(t, func() bool { return panel.HTML() == "<p>hi there</p>" }, 2*time.Second, 10*time.Millisecond)
}
