package vkteams

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/config"
)

// fakeAPI serves queued events/get bodies and records every other call.
type fakeAPI struct {
	mu      sync.Mutex
	polls   []string
	pollQs  []url.Values
	calls   map[string][]url.Values
	replies map[string]string
	onCall  func(endpoint string)
}

func newFakeAPI(polls ...string) *fakeAPI {
	return &fakeAPI{polls: polls, calls: make(map[string][]url.Values), replies: make(map[string]string)}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, config.DefaultBasePath)
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	if endpoint == eventsEndpoint {
		f.mu.Lock()
		f.pollQs = append(f.pollQs, q)
		var body string
		if len(f.polls) > 0 {
			body, f.polls = f.polls[0], f.polls[1:]
		}
		f.mu.Unlock()
		if body == "" {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			body = `{"ok":true,"events":[]}`
		}
		if strings.HasPrefix(body, "status:") {
			w.WriteHeader(http.StatusBadGateway)
			body = `{"ok":false}`
		}
		_, _ = w.Write([]byte(body))
		return
	}

	f.mu.Lock()
	f.calls[endpoint] = append(f.calls[endpoint], q)
	reply, ok := f.replies[endpoint]
	hook := f.onCall
	f.mu.Unlock()
	if !ok {
		reply = `{"ok":true,"msgId":"m-1"}`
	}
	_, _ = w.Write([]byte(reply))
	if hook != nil {
		hook(endpoint)
	}
}

func (f *fakeAPI) Calls(endpoint string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.calls[endpoint]...)
}

func (f *fakeAPI) PollQueries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.pollQs...)
}

func testConfig(serverURL string) *config.Config {
	return &config.Config{VKTeams: config.VKTeamsConfig{
		Token:           "001.0123456789.secret:1000",
		URL:             serverURL,
		TimeoutSeconds:  5,
		PollTimeSeconds: 1,
		ErrorBackoffMS:  10,
	}}
}

func newTestBot(t *testing.T, api *fakeAPI, mutate ...func(*Options)) *Bot {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	opts := Options{Config: testConfig(srv.URL)}
	for _, m := range mutate {
		m(&opts)
	}
	b, err := New(opts)
	require.NoError(t, err)
	return b
}

func (f *fakeAPI) setReply(endpoint, body string) {
	f.mu.Lock()
	f.replies[endpoint] = body
	f.mu.Unlock()
}
