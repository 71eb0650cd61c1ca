package huehttps

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbaccus/hue-presence-control/internal/hue"
)

// run is the dispatch worker: the only goroutine that performs network I/O
// for this session. It waits for a trigger or exit, performs one
// send-with-retry cycle for the current request, then promotes the next slot.
func (s *Session) run() {
	defer close(s.done)

	for {
		bits := s.sig.wait(evtTrigger|evtExit, evtTrigger)
		if bits&evtExit != 0 {
			return
		}

		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur == nil {
			continue
		}

		s.sendCurrent(cur)
	}
}

// sendCurrent performs one full request cycle for req and then rotates the
// queue slots under the mutex. The mutex is never held across network calls.
func (s *Session) sendCurrent(req *hue.Request) {
	start := time.Now()
	outcome := Outcome{ResourcePath: req.ResourcePath()}
	outcome.Err = s.sendWithRetry(req, &outcome)
	outcome.Duration = time.Since(start)

	// While the network-ready gate is closed the request is held, not
	// consumed: the connected event re-triggers the cycle.
	if errors.Is(outcome.Err, hue.ErrNotConnected) {
		log.Debug().
			Str("resource", outcome.ResourcePath).
			Msg("Network not ready, request held for reconnect")
		return
	}

	if outcome.Err != nil {
		log.Error().
			Err(outcome.Err).
			Str("resource", outcome.ResourcePath).
			Int("attempts", outcome.Attempts).
			Msg("Request cycle failed")
	} else {
		log.Info().
			Str("resource", outcome.ResourcePath).
			Int("attempts", outcome.Attempts).
			Dur("took", outcome.Duration).
			Msg("Request cycle completed")
	}

	if s.recorder != nil {
		s.recorder.RecordOutcome(outcome)
	}

	s.mu.Lock()
	s.current = s.next
	s.next = nil
	hasMore := s.current != nil
	s.mu.Unlock()

	req.Release()

	if hasMore {
		s.sig.set(evtTrigger)
	}
	s.sig.clear(evtAbort)
}

// sendWithRetry drives the bounded retry loop for one request. Transport
// failures retry up to the attempt budget with a fixed delay; a non-200
// response is terminal on the attempt it arrives.
func (s *Session) sendWithRetry(req *hue.Request, outcome *Outcome) error {
	path := req.ResourcePath()
	if s.baseLen+len(path) > urlBufferSize {
		return fmt.Errorf("resource path %q overflows URL buffer: %w", path, hue.ErrInvalidSize)
	}
	n := copy(s.urlBuf[s.baseLen:], path)
	url := string(s.urlBuf[:s.baseLen+n])

	maxAttempts := s.retryAttempts + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Gate every attempt on the signal state: no network traffic while
		// offline, aborting or exiting.
		bits := s.sig.get()
		if bits&(evtAbort|evtExit) != 0 {
			return hue.ErrAborted
		}
		if bits&evtNetReady == 0 {
			return hue.ErrNotConnected
		}

		outcome.Attempts = attempt
		err := s.performOnce(url, req.Body(), outcome)
		if err == nil {
			return nil
		}
		if errors.Is(err, hue.ErrInvalidResponse) {
			return err
		}

		log.Info().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("Request attempt failed")

		if attempt < maxAttempts {
			time.Sleep(s.retryDelay)
		}
	}

	return fmt.Errorf("no success after %d attempts: %w", maxAttempts, hue.ErrRequestFailed)
}

// performOnce performs a single PUT with a brand-new client and transport.
// Connections are deliberately not reused between attempts; a fresh handshake
// per try behaves better on flaky links than a half-dead pooled connection.
func (s *Session) performOnce(url string, body []byte, outcome *Outcome) error {
	client := &http.Client{
		Timeout:   s.requestTimeout,
		Transport: s.newTransport(),
	}

	httpReq, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("hue-application-key", string(s.appKey[:]))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()
	defer client.CloseIdleConnections()

	// Bounded raw capture of the response; status-only protocol handling.
	var respBuf [responseBufferSize]byte
	captured := 0
	for captured < len(respBuf) {
		m, rerr := resp.Body.Read(respBuf[captured:])
		captured += m
		if rerr != nil {
			break
		}
	}

	outcome.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Bytes("body", respBuf[:captured]).
			Msg("Bridge response status not 200 OK")
		return fmt.Errorf("status %d: %w", resp.StatusCode, hue.ErrInvalidResponse)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Bytes("body", respBuf[:captured]).
		Msg("Bridge response")
	return nil
}
