package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"mastrogpt/internal/types"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []types.SideChannel
}

func (s *recordingSink) Forward(p types.SideChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return nil
}

func str(s string) *string { return &s }

func TestWelcomeDoesNotCallBackend(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	inv := New("Echo", srv.URL)
	out := inv.Invoke(context.Background(), nil)
	require.Contains(t, out, "selected service Echo")
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestUnboundNeverCallsBackend(t *testing.T) {
	inv := New("No Chat", "")
	require.False(t, inv.Bound())
	require.Equal(t, UnboundWelcome, inv.Invoke(context.Background(), nil))
	require.Equal(t, UnboundInstruction, inv.Invoke(context.Background(), str("hello")))
	require.Equal(t, UnboundInstruction, inv.Invoke(context.Background(), str("")))
}

func TestStateThreading(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		bodies = append(bodies, body)
		n := len(bodies)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch n {
		case 1:
			_, _ = w.Write([]byte(`{"output":"hello","state":"s1"}`))
		case 2:
			_, _ = w.Write([]byte(`{"output":"again","state":null}`))
		default:
			_, _ = w.Write([]byte(`{"output":"last"}`))
		}
	}))
	defer srv.Close()

	inv := New("Echo", srv.URL)
	ctx := context.Background()

	require.Equal(t, "hello", inv.Invoke(ctx, str("hi")))
	require.JSONEq(t, `"s1"`, string(inv.State()))

	require.Equal(t, "again", inv.Invoke(ctx, str("next")))
	require.Nil(t, inv.State())

	require.Equal(t, "last", inv.Invoke(ctx, str("third")))

	require.Len(t, bodies, 3)
	require.JSONEq(t, `"hi"`, string(bodies[0]["input"]))
	_, hasState := bodies[0]["state"]
	require.False(t, hasState, "first turn must omit state")
	require.JSONEq(t, `"s1"`, string(bodies[1]["state"]))
	_, hasState = bodies[2]["state"]
	require.False(t, hasState, "cleared state must be omitted")
}

func TestSideChannelIsStripped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":"look","state":{"n":1},"html":"<b>x</b>","title":"T"}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	inv := New("Demo", srv.URL, WithSink(sink))
	require.Equal(t, "look", inv.Invoke(context.Background(), str("html")))

	require.Len(t, sink.payloads, 1)
	p := sink.payloads[0]
	require.Len(t, p, 2)
	require.JSONEq(t, `"<b>x</b>"`, string(p["html"]))
	require.JSONEq(t, `"T"`, string(p["title"]))
	require.NotContains(t, p, "output")
	require.NotContains(t, p, "state")
}

func TestNoSideChannelNoForward(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":"plain"}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	inv := New("Echo", srv.URL, WithSink(sink))
	require.Equal(t, "plain", inv.Invoke(context.Background(), str("x")))
	require.Empty(t, sink.payloads)
}

func TestFailuresResolveWithURL(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer bad.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	goneURL := gone.URL
	gone.Close()

	for _, url := range []string{bad.URL, broken.URL, goneURL} {
		inv := New("X", url)
		out := inv.Invoke(context.Background(), str("hi"))
		require.Equal(t, "ERROR interacting with "+url, out)
	}
}

func TestCloseCancelsInFlightTurn(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	inv := New("Slow", srv.URL)
	done := make(chan string, 1)
	go func() { done <- inv.Invoke(context.Background(), str("hi")) }()

	<-entered
	inv.Close()
	require.Equal(t, "ERROR interacting with "+srv.URL, <-done)
}
