package huehttps

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbaccus/hue-presence-control/internal/hue"
)

// fakeTransport records every attempted request and answers with whatever the
// respond callback produces.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []capturedCall
	respond func(*http.Request) (*http.Response, error)
}

type capturedCall struct {
	method string
	url    string
	header http.Header
	body   string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}

	f.mu.Lock()
	f.calls = append(f.calls, capturedCall{
		method: req.Method,
		url:    req.URL.String(),
		header: req.Header.Clone(),
		body:   body,
	})
	f.mu.Unlock()

	return f.respond(req)
}

func (f *fakeTransport) captured() []capturedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedCall(nil), f.calls...)
}

func okResponse() (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"data":[{"rid":"x"}]}`)),
		Header:     make(http.Header),
	}, nil
}

func statusResponse(code int) (*http.Response, error) {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(`{"errors":[{"description":"nope"}]}`)),
		Header:     make(http.Header),
	}, nil
}

// outcomeChan collects cycle outcomes so tests can synchronize on completion.
type outcomeChan chan Outcome

func (c outcomeChan) RecordOutcome(o Outcome) { c <- o }

func (c outcomeChan) next(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-c:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request cycle outcome")
		return Outcome{}
	}
}

func newTestSession(t *testing.T, retries int, respond func(*http.Request) (*http.Response, error)) (*Session, *fakeTransport, outcomeChan) {
	t.Helper()

	outcomes := make(outcomeChan, 8)
	cfg := validConfig()
	cfg.RetryAttempts = retries
	cfg.Recorder = outcomes

	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(s.Close)

	ft := &fakeTransport{respond: respond}
	s.newTransport = func() http.RoundTripper { return ft }
	s.retryDelay = time.Millisecond

	return s, ft, outcomes
}

func TestDispatchSuccess(t *testing.T) {
	s, ft, outcomes := newTestSession(t, 2, func(*http.Request) (*http.Response, error) {
		return okResponse()
	})
	s.HandleConnected()

	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}

	o := outcomes.next(t)
	if !o.Ok() {
		t.Fatalf("outcome error = %v", o.Err)
	}
	if o.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", o.Attempts)
	}
	if o.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", o.StatusCode)
	}

	calls := ft.captured()
	if len(calls) != 1 {
		t.Fatalf("network attempts = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.method != http.MethodPut {
		t.Errorf("method = %s, want PUT", call.method)
	}
	wantURL := "https://192.168.1.10/clip/v2/resource/light/" + testLightID
	if call.url != wantURL {
		t.Errorf("url = %s, want %s", call.url, wantURL)
	}
	if got := call.header.Get("hue-application-key"); got != testAppKey {
		t.Errorf("hue-application-key = %q, want %q", got, testAppKey)
	}
	if got := call.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if call.body != `{"on":{"on":true}}` {
		t.Errorf("body = %s, want %s", call.body, `{"on":{"on":true}}`)
	}
}

func TestDispatchRetryBound(t *testing.T) {
	const retries = 2
	s, ft, outcomes := newTestSession(t, retries, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	s.HandleConnected()

	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}

	o := outcomes.next(t)
	if !errors.Is(o.Err, hue.ErrRequestFailed) {
		t.Errorf("outcome error = %v, want ErrRequestFailed", o.Err)
	}
	if o.Attempts != retries+1 {
		t.Errorf("attempts = %d, want %d", o.Attempts, retries+1)
	}
	if got := len(ft.captured()); got != retries+1 {
		t.Errorf("network attempts = %d, want %d", got, retries+1)
	}
}

func TestDispatchNon200IsTerminal(t *testing.T) {
	s, ft, outcomes := newTestSession(t, 3, func(*http.Request) (*http.Response, error) {
		return statusResponse(http.StatusNotFound)
	})
	s.HandleConnected()

	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}

	o := outcomes.next(t)
	if !errors.Is(o.Err, hue.ErrInvalidResponse) {
		t.Errorf("outcome error = %v, want ErrInvalidResponse", o.Err)
	}
	if o.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retries on protocol errors)", o.Attempts)
	}
	if o.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", o.StatusCode)
	}
	if got := len(ft.captured()); got != 1 {
		t.Errorf("network attempts = %d, want 1", got)
	}
}

func TestDispatchHeldWhileOffline(t *testing.T) {
	s, ft, outcomes := newTestSession(t, 2, func(*http.Request) (*http.Response, error) {
		return okResponse()
	})
	// No HandleConnected: the network-ready gate stays closed.

	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}

	// The gated cycle makes no network attempt and reports no outcome; the
	// request is held for reconnect.
	select {
	case o := <-outcomes:
		t.Fatalf("unexpected outcome while offline: %+v", o)
	case <-time.After(50 * time.Millisecond):
	}
	if got := len(ft.captured()); got != 0 {
		t.Errorf("network attempts while offline = %d, want 0", got)
	}

	// The connected event alone resumes dispatch of the held request.
	s.HandleConnected()
	o := outcomes.next(t)
	if !o.Ok() {
		t.Fatalf("outcome after reconnect = %v, want success", o.Err)
	}
	if got, want := o.ResourcePath, "light/"+testLightID; got != want {
		t.Errorf("resource = %q, want %q", got, want)
	}
	if got := len(ft.captured()); got != 1 {
		t.Errorf("network attempts = %d, want 1", got)
	}
}

func TestDispatchDisconnectGatesNextCycle(t *testing.T) {
	s, ft, outcomes := newTestSession(t, 0, func(*http.Request) (*http.Response, error) {
		return okResponse()
	})
	s.HandleConnected()
	s.HandleDisconnected()

	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}

	select {
	case o := <-outcomes:
		t.Fatalf("unexpected outcome while disconnected: %+v", o)
	case <-time.After(50 * time.Millisecond):
	}
	if got := len(ft.captured()); got != 0 {
		t.Errorf("network attempts while disconnected = %d, want 0", got)
	}

	s.HandleConnected()
	o := outcomes.next(t)
	if !o.Ok() {
		t.Fatalf("outcome after reconnect = %v, want success", o.Err)
	}
}

func TestDispatchAbortStopsNextCycle(t *testing.T) {
	s, ft, outcomes := newTestSession(t, 2, func(*http.Request) (*http.Response, error) {
		return okResponse()
	})
	s.HandleConnected()
	s.Abort()

	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}

	o := outcomes.next(t)
	if !errors.Is(o.Err, hue.ErrAborted) {
		t.Errorf("outcome error = %v, want ErrAborted", o.Err)
	}
	if got := len(ft.captured()); got != 0 {
		t.Errorf("network attempts = %d, want 0", got)
	}

	// The abort flag is consumed at the end of the cycle; the next request
	// proceeds normally.
	if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: testLightID}); err != nil {
		t.Fatalf("QueueLightUpdate() error = %v", err)
	}
	o = outcomes.next(t)
	if !o.Ok() {
		t.Errorf("outcome after abort consumed = %v, want success", o.Err)
	}
}

func TestDispatchLastWriterWins(t *testing.T) {
	release := make(chan struct{})
	s, ft, outcomes := newTestSession(t, 0, func(*http.Request) (*http.Response, error) {
		<-release
		return okResponse()
	})
	s.HandleConnected()

	ids := []string{
		"aaaaaaaa-0000-0000-0000-000000000001",
		"aaaaaaaa-0000-0000-0000-000000000002",
		"aaaaaaaa-0000-0000-0000-000000000003",
	}

	// First request becomes current and blocks in flight; the second lands
	// in the next slot; the third replaces it before it ever starts.
	for _, id := range ids {
		if err := s.QueueLightUpdate(&hue.LightCommand{ResourceID: id}); err != nil {
			t.Fatalf("QueueLightUpdate(%s) error = %v", id, err)
		}
	}
	close(release)

	first := outcomes.next(t)
	second := outcomes.next(t)

	if got, want := first.ResourcePath, "light/"+ids[0]; got != want {
		t.Errorf("first cycle = %q, want %q (in-flight request is never displaced)", got, want)
	}
	if got, want := second.ResourcePath, "light/"+ids[2]; got != want {
		t.Errorf("second cycle = %q, want %q (last writer wins for the queued slot)", got, want)
	}

	select {
	case o := <-outcomes:
		t.Fatalf("unexpected third cycle for %s", o.ResourcePath)
	case <-time.After(50 * time.Millisecond):
	}

	calls := ft.captured()
	if len(calls) != 2 {
		t.Fatalf("network attempts = %d, want 2", len(calls))
	}
	for i, wantID := range []string{ids[0], ids[2]} {
		wantURL := fmt.Sprintf("https://192.168.1.10/clip/v2/resource/light/%s", wantID)
		if calls[i].url != wantURL {
			t.Errorf("call %d url = %s, want %s", i, calls[i].url, wantURL)
		}
	}
}

func TestDispatchSceneRecall(t *testing.T) {
	s, ft, outcomes := newTestSession(t, 0, func(*http.Request) (*http.Response, error) {
		return okResponse()
	})
	s.HandleConnected()

	if err := s.QueueSceneRecall(&hue.SceneCommand{ResourceID: testLightID, Deactivate: true}); err != nil {
		t.Fatalf("QueueSceneRecall() error = %v", err)
	}

	o := outcomes.next(t)
	if !o.Ok() {
		t.Fatalf("outcome error = %v", o.Err)
	}

	calls := ft.captured()
	if len(calls) != 1 {
		t.Fatalf("network attempts = %d, want 1", len(calls))
	}
	wantURL := "https://192.168.1.10/clip/v2/resource/smart_scene/" + testLightID
	if calls[0].url != wantURL {
		t.Errorf("url = %s, want %s", calls[0].url, wantURL)
	}
	if calls[0].body != `{"recall":{"action":"deactivate"}}` {
		t.Errorf("body = %s", calls[0].body)
	}
}
