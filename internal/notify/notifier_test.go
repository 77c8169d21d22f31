package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, text)
	return s.err
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestNotify_NeverBlocksWhenFull(t *testing.T) {
	n := New(1, &recordingSink{name: "rec"})

	assert.True(t, n.Notify("first"))
	done := make(chan bool, 1)
	go func() { done <- n.Notify("second") }()

	select {
	case ok := <-done:
		assert.False(t, ok, "full queue drops the message")
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestNotify_WithoutSinksIsDisabled(t *testing.T) {
	n := New(4)
	assert.False(t, n.Enabled())
	assert.False(t, n.Notify("ignored"))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Notify("ignored"))
}

func TestRun_DeliversToAllSinksDespiteFailures(t *testing.T) {
	failing := &recordingSink{name: "bad", err: errors.New("boom")}
	ok := &recordingSink{name: "good"}
	n := New(8, failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Notifyf("entry %s", "LONG")
	n.Notify("closed")

	require.Eventually(t, func() bool { return len(ok.messages()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"entry LONG", "closed"}, ok.messages())
	assert.Len(t, failing.messages(), 2)

	cancel()
	<-done
}

func TestRun_DrainsQueueOnShutdown(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	n := New(8, sink)
	n.Notify("a")
	n.Notify("b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	assert.ElementsMatch(t, []string{"a", "b"}, sink.messages())
}

func TestWebhookSink(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSink(srv.URL).Send(context.Background(), "hello"))
	assert.Equal(t, "hello", got["text"])
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, NewWebhookSink(srv.URL).Send(context.Background(), "hello"))
}

func TestTelegramSink(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/botTOKEN/getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"guard","username":"guard_bot"}}`))
		case "/botTOKEN/sendMessage":
			_ = r.ParseForm()
			mu.Lock()
			sent = append(sent, r.FormValue("chat_id")+":"+r.FormValue("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sink, err := NewTelegramSinkWithEndpoint("TOKEN", 42, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), "hard stop"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"42:hard stop"}, sent)
}

func TestTelegramSink_HungRequestTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/botTOKEN/getMe" {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"guard","username":"guard_bot"}}`))
			return
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	sink, err := newTelegramSink("TOKEN", 42, srv.URL+"/bot%s/%s", 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	assert.Error(t, sink.Send(context.Background(), "hard stop"))
	assert.Less(t, time.Since(start), 2*time.Second)

	// ctx先结束时不等待HTTP超时
	slow, err := newTelegramSink("TOKEN", 42, srv.URL+"/bot%s/%s", time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start = time.Now()
	assert.ErrorIs(t, slow.Send(ctx, "hard stop"), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewTelegramSink_RequiresChatID(t *testing.T) {
	_, err := NewTelegramSink("token", 0)
	assert.Error(t, err)
}
