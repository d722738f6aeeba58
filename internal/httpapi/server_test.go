package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeBroker struct {
	clients  []ClientView
	channels []ChannelView
	subs     map[string][]ClientView
}

func (f fakeBroker) Clients() []ClientView   { return f.clients }
func (f fakeBroker) Channels() []ChannelView { return f.channels }
func (f fakeBroker) ChannelSubscribers(channelGUID string) ([]ClientView, bool) {
	subs, ok := f.subs[channelGUID]
	return subs, ok
}

func newTestServer() (*Server, fakeBroker) {
	broker := fakeBroker{
		clients: []ClientView{{GUID: "c1", IP: "1.2.3.4", Port: 9000, LoggedIn: true}},
		channels: []ChannelView{
			{GUID: "ch1", Name: "general", OwnerGUID: "c1", SubscriberCount: 1},
			{GUID: "ch2", Name: "secret", OwnerGUID: "c1", Private: 1, SubscriberCount: 1},
		},
		subs: map[string][]ClientView{"ch1": {{GUID: "c1"}}},
	}
	return New(broker, "0.1.0", "s3cr3t"), broker
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	return doRequestWithToken(s, method, path, "")
}

func doRequestWithToken(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(adminTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "0.1.0") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleClients(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/clients")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "c1") {
		t.Fatalf("expected client c1 in response: %s", rec.Body.String())
	}
}

func TestHandleChannelsHidesPrivateWithoutToken(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/channels")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("private channel should be hidden without an admin token: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "general") {
		t.Fatalf("public channel should still be listed: %s", rec.Body.String())
	}
}

func TestHandleChannelsShowsPrivateWithValidToken(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequestWithToken(s, http.MethodGet, "/api/channels", "s3cr3t")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("private channel should be visible with a matching admin token: %s", rec.Body.String())
	}
}

func TestHandleChannelsHidesPrivateWithWrongToken(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequestWithToken(s, http.MethodGet, "/api/channels", "nope")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("private channel should stay hidden with a wrong token: %s", rec.Body.String())
	}
}

func TestHandleChannelSubscribersNotFound(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/channels/ghost/subscribers")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleChannelSubscribersFound(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/channels/ch1/subscribers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"clients":1`) {
		t.Fatalf("unexpected metrics body: %s", rec.Body.String())
	}
}
