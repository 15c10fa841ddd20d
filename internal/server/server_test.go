package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/events"
	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/presence"
)

type fakeGroups struct {
	reloaded []string
	err      error
}

func (f *fakeGroups) Names() []string { return []string{"admin", "dice", "ping"} }

func (f *fakeGroups) Reload(_ context.Context, source, name string) error {
	f.reloaded = append(f.reloaded, source+":"+name)
	return f.err
}

func (f *fakeGroups) ReloadAll(_ context.Context, source string) error {
	f.reloaded = append(f.reloaded, source+":*")
	return f.err
}

func newTestServer(token string) (*StatusServer, *fakeGroups, http.Handler) {
	groups := &fakeGroups{}
	tracker := presence.New(nil)
	tracker.Record(model.Event{
		ID: "ev-1", Type: model.EventMessagePosted, Timestamp: time.Now(),
		SpaceID: "sp", RoomID: "r1", Actor: &model.Actor{ID: "u-1", Login: "alice"},
	})
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := New(Options{
		Token:    token,
		State:    func() string { return "subscribed" },
		Attempt:  func() int { return 0 },
		Cursors:  func() model.Cursors { return model.Cursors{"sp": {LastEventID: "ev-9", LastTimestamp: ts}} },
		Pending:  func() int { return 2 },
		Loaded:   func() []string { return []string{"ping", "dice"} },
		Groups:   groups,
		Presence: tracker,
		Started:  ts,
	})
	srv.now = func() time.Time { return ts.Add(90 * time.Second) }
	return srv, groups, srv.NewHTTPHandler()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer("")
	rec := do(t, h, "GET", "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	_, _, h := newTestServer("")
	rec := do(t, h, "GET", "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "subscribed" || st.Pending != 2 || st.Uptime != "1m30s" || st.ActiveUser != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.Cursors["sp"].LastEventID != "ev-9" {
		t.Errorf("cursors = %+v", st.Cursors)
	}
	if strings.Join(st.Groups, ",") != "ping,dice" {
		t.Errorf("groups = %v", st.Groups)
	}
}

func TestHandleListGroups(t *testing.T) {
	_, _, h := newTestServer("")
	rec := do(t, h, "GET", "/v1/groups", "")
	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body["loaded"]) != 2 || len(body["available"]) != 3 {
		t.Errorf("body = %v", body)
	}
}

func TestHandleReloadGroup(t *testing.T) {
	_, groups, h := newTestServer("")

	if rec := do(t, h, "POST", "/v1/groups/dice/reload", ""); rec.Code != http.StatusOK {
		t.Fatalf("reload dice status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, "POST", "/v1/groups/all/reload", ""); rec.Code != http.StatusOK {
		t.Fatalf("reload all status = %d", rec.Code)
	}
	if strings.Join(groups.reloaded, ",") != "http:dice,http:*" {
		t.Errorf("reloaded = %v", groups.reloaded)
	}

	groups.err = errors.New("group not loaded")
	rec := do(t, h, "POST", "/v1/groups/nope/reload", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("failed reload status = %d, want 409", rec.Code)
	}
}

func TestHandleRoster(t *testing.T) {
	_, _, h := newTestServer("")
	rec := do(t, h, "GET", "/v1/roster", "")
	var body struct {
		Users []presence.Entry `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Users) != 1 || body.Users[0].Login != "alice" {
		t.Errorf("users = %+v", body.Users)
	}

	if rec := do(t, h, "GET", "/v1/roster?stale_threshold_secs=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad threshold status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, h := newTestServer("secret")
	rec := do(t, h, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, _, h := newTestServer("secret")
	for _, tc := range []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health exempt", "/v1/health", "", http.StatusOK},
		{"missing token", "/v1/status", "", http.StatusUnauthorized},
		{"wrong token", "/v1/status", "nope", http.StatusUnauthorized},
		{"valid token", "/v1/status", "secret", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, h, "GET", tc.path, tc.token); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	req := httptest.NewRequest("GET", "/v1/status", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("basic scheme status = %d", rec.Code)
	}
}

func TestStreamHub_BacklogAndFiltering(t *testing.T) {
	hub := newStreamHub()
	c := hub.subscribe([]string{"chatto.bot.group.*"})
	defer hub.unsubscribe(c)

	hub.broadcast(events.TopicConnectionState, []byte(`{}`))
	hub.broadcast(events.TopicGroupLoaded, []byte(`{"group":"dice"}`))

	select {
	case ev := <-c.ch:
		if ev.Topic != events.TopicGroupLoaded || ev.ID != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case ev := <-c.ch:
		t.Fatalf("unexpected event %s", ev.Topic)
	case <-time.After(20 * time.Millisecond):
	}

	for range streamBacklog + 10 {
		hub.broadcast(events.TopicShutdown, nil)
	}
	backlog := hub.since(0)
	if len(backlog) != streamBacklog {
		t.Fatalf("backlog = %d, want %d", len(backlog), streamBacklog)
	}
	if backlog[0].ID != 13 {
		t.Errorf("oldest id = %d, want 13", backlog[0].ID)
	}
}

func TestMatchTopic(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		want           bool
	}{
		{"chatto.bot.shutdown", "chatto.bot.shutdown", true},
		{"chatto.bot.*", "chatto.bot.shutdown", true},
		{"chatto.bot.*", "chatto.bot.group.loaded", false},
		{"chatto.>", "chatto.bot.group.loaded", true},
		{"chatto.>", "chatto", false},
		{"*.*", "chatto.bot.shutdown", false},
	} {
		if got := matchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestHandleEventStream(t *testing.T) {
	srv, _, h := newTestServer("")
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/events/stream?topics=chatto.bot.replay.*", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// the subscription is registered before headers are flushed
	_ = srv.Publish(ctx, events.TopicShutdown, events.ShuttingDown{Reason: "x"})
	_ = srv.Publish(ctx, events.TopicReplayCompleted, events.ReplayCompleted{Spaces: []string{"sp"}, Replayed: 3})

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed early, got %v", got)
			}
			if l != "" {
				got = append(got, l)
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "id:2" || got[1] != "event:"+events.TopicReplayCompleted {
		t.Errorf("frame = %v", got)
	}
	if !strings.Contains(got[2], `"replayed":3`) {
		t.Errorf("data = %q", got[2])
	}
}
