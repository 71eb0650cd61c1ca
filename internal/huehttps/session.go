// Package huehttps drives HTTPS PUT requests against a single Hue bridge.
// A session owns a two-slot request queue (current and next) and one dispatch
// worker, which together guarantee at most one in-flight request per session.
package huehttps

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbaccus/hue-presence-control/internal/hue"
)

const (
	resourcePathPrefix = "/clip/v2/resource/"

	// "https://" + shortest/longest IPv4 + resource prefix.
	urlBaseMinLength = 8 + 7 + len(resourcePathPrefix)
	urlBaseMaxLength = 8 + 15 + len(resourcePathPrefix)

	// Base plus the longest resource type tag, a slash and a resource ID.
	urlBufferSize = urlBaseMaxLength + len("grouped_light") + 1 + hue.ResourceIDLength

	bridgeIDLength = 16
	appKeyLength   = 40

	defaultRequestTimeout = 5 * time.Second
	defaultRetryDelay     = 1 * time.Second

	// Bounded capture of the response body; anything past this is discarded.
	responseBufferSize = 512
)

var (
	bridgeIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)
	appKeyPattern   = regexp.MustCompile(`^[-_0-9A-Za-z]{40}$`)
)

// ErrSessionClosed is returned when queueing on a session after Close.
var ErrSessionClosed = fmt.Errorf("session closed")

// Config carries everything needed to talk to one bridge.
type Config struct {
	BridgeIP       string // dotted-quad IPv4 on the local network
	BridgeID       string // 16 hex chars, used as the TLS server name
	ApplicationKey string // 40-char URL-base64 credential sent on every request

	RetryAttempts  int           // retries after the first attempt
	RequestTimeout time.Duration // per-attempt; defaults to 5s

	// CACert is an optional PEM bundle to verify the bridge certificate
	// against. When empty, TLS verification is skipped, matching the
	// self-signed certificates older bridges present.
	CACert []byte

	// Recorder, when set, receives the outcome of every request cycle.
	Recorder Recorder
}

// Session owns the bridge URL base, credential copies, the request slots and
// the dispatch worker. Create with NewSession; release with Close.
type Session struct {
	urlBuf   [urlBufferSize]byte
	baseLen  int
	bridgeID [bridgeIDLength]byte
	appKey   [appKeyLength]byte

	tlsConf        *tls.Config
	requestTimeout time.Duration
	retryAttempts  int
	retryDelay     time.Duration
	recorder       Recorder

	// newTransport returns a fresh transport for each attempt so no
	// connection state is reused across retries.
	newTransport func() http.RoundTripper

	mu      sync.Mutex
	closed  bool
	current *hue.Request
	next    *hue.Request

	sig  *signalGroup
	done chan struct{}
}

func checkBridgeIP(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil || len(ip) > 15 {
		return fmt.Errorf("bridge IP %q is not a dotted-quad IPv4 address: %w", ip, hue.ErrInvalidArgument)
	}
	return nil
}

func checkBridgeID(id string) error {
	if !bridgeIDPattern.MatchString(id) {
		return fmt.Errorf("bridge ID must be %d hex characters: %w", bridgeIDLength, hue.ErrInvalidArgument)
	}
	return nil
}

func checkAppKey(key string) error {
	if !appKeyPattern.MatchString(key) {
		return fmt.Errorf("application key must be %d URL-base64 characters: %w", appKeyLength, hue.ErrInvalidArgument)
	}
	return nil
}

// NewSession validates the configuration, builds the URL base and credential
// copies, and starts the dispatch worker. Any failure releases everything
// acquired so far.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config: %w", hue.ErrInvalidArgument)
	}
	if cfg.BridgeIP == "" || cfg.BridgeID == "" || cfg.ApplicationKey == "" {
		return nil, fmt.Errorf("bridge IP, bridge ID and application key are required: %w", hue.ErrInvalidArgument)
	}
	if err := checkBridgeIP(cfg.BridgeIP); err != nil {
		return nil, err
	}
	if err := checkBridgeID(cfg.BridgeID); err != nil {
		return nil, err
	}
	if err := checkAppKey(cfg.ApplicationKey); err != nil {
		return nil, err
	}
	if cfg.RetryAttempts < 0 {
		return nil, fmt.Errorf("retry attempts must not be negative: %w", hue.ErrInvalidArgument)
	}

	s := &Session{
		requestTimeout: cfg.RequestTimeout,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     defaultRetryDelay,
		recorder:       cfg.Recorder,
		sig:            newSignalGroup(),
		done:           make(chan struct{}),
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = defaultRequestTimeout
	}

	if err := s.fillURLBase(cfg.BridgeIP); err != nil {
		return nil, err
	}

	// Copy credentials into the fixed buffers, then re-validate the copies.
	// Catches truncation introduced by the copy; should be unreachable.
	copy(s.bridgeID[:], cfg.BridgeID)
	if err := checkBridgeID(string(s.bridgeID[:])); err != nil {
		return nil, fmt.Errorf("bridge ID copy mismatch: %w", hue.ErrInvalidSize)
	}
	copy(s.appKey[:], cfg.ApplicationKey)
	if err := checkAppKey(string(s.appKey[:])); err != nil {
		return nil, fmt.Errorf("application key copy mismatch: %w", hue.ErrInvalidSize)
	}

	if len(cfg.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACert) {
			return nil, fmt.Errorf("CA certificate PEM could not be parsed: %w", hue.ErrInvalidArgument)
		}
		s.tlsConf = &tls.Config{
			RootCAs:    pool,
			ServerName: string(s.bridgeID[:]),
		}
	} else {
		// Bridges ship a self-signed certificate; without a CA bundle the
		// only option on the local network is to skip verification.
		s.tlsConf = &tls.Config{InsecureSkipVerify: true}
	}

	s.newTransport = func() http.RoundTripper {
		return &http.Transport{
			TLSClientConfig:   s.tlsConf,
			DisableKeepAlives: true,
		}
	}

	go s.run()

	log.Info().
		Str("bridge_ip", cfg.BridgeIP).
		Str("bridge_id", cfg.BridgeID).
		Int("retry_attempts", cfg.RetryAttempts).
		Msg("Hue HTTPS session created")

	return s, nil
}

// fillURLBase prints "https://<ip>/clip/v2/resource/" into the fixed URL
// buffer and records the offset where resource paths are appended.
func (s *Session) fillURLBase(bridgeIP string) error {
	if err := checkBridgeIP(bridgeIP); err != nil {
		return err
	}

	base := fmt.Sprintf("https://%s%s", bridgeIP, resourcePathPrefix)
	if len(base) < urlBaseMinLength || len(base) > urlBaseMaxLength {
		return fmt.Errorf("URL base length %d outside [%d,%d]: %w",
			len(base), urlBaseMinLength, urlBaseMaxLength, hue.ErrInvalidSize)
	}

	for i := range s.urlBuf {
		s.urlBuf[i] = 0
	}
	s.baseLen = copy(s.urlBuf[:], base)
	return nil
}

// QueueLightUpdate serializes a light command and queues it for dispatch.
func (s *Session) QueueLightUpdate(cmd *hue.LightCommand) error {
	ser, err := hue.SerializeLight(cmd)
	if err != nil {
		return err
	}
	return s.queueSerialized(ser)
}

// QueueGroupedLightUpdate serializes a grouped-light command and queues it.
func (s *Session) QueueGroupedLightUpdate(cmd *hue.LightCommand) error {
	ser, err := hue.SerializeGroupedLight(cmd)
	if err != nil {
		return err
	}
	return s.queueSerialized(ser)
}

// QueueSceneRecall serializes a smart-scene recall and queues it. Recalls use
// the same two-slot replacement policy as every other resource type.
func (s *Session) QueueSceneRecall(cmd *hue.SceneCommand) error {
	ser, err := hue.SerializeSmartScene(cmd)
	if err != nil {
		return err
	}
	return s.queueSerialized(ser)
}

func (s *Session) queueSerialized(ser *hue.Serialized) error {
	req, err := hue.NewRequest(ser)
	if err != nil {
		return err
	}
	return s.enqueue(req)
}

// enqueue installs req as current when the session is idle, otherwise as
// next, replacing whatever was queued but not yet started. The in-flight
// request is never displaced.
func (s *Session) enqueue(req *hue.Request) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		req.Release()
		return ErrSessionClosed
	}
	if s.current == nil {
		s.current = req
	} else {
		if s.next != nil {
			log.Debug().
				Str("replaced", s.next.ResourcePath()).
				Str("with", req.ResourcePath()).
				Msg("Queued request replaced before starting")
			s.next.Release()
		}
		s.next = req
	}
	s.mu.Unlock()

	s.sig.set(evtTrigger)
	return nil
}

// HandleConnected marks the network ready and wakes the worker so a request
// queued while offline resumes immediately.
func (s *Session) HandleConnected() {
	log.Debug().Msg("Network ready, resuming dispatch")
	s.sig.set(evtNetReady | evtTrigger)
}

// HandleDisconnected clears the network-ready gate. An in-flight attempt is
// not interrupted; it fails or times out on its own.
func (s *Session) HandleDisconnected() {
	log.Debug().Msg("Network lost, gating dispatch")
	s.sig.clear(evtNetReady)
}

// Abort prevents the next queued request from starting. It cannot interrupt
// a request already mid-flight. The abort flag is consumed at the end of the
// running cycle.
func (s *Session) Abort() {
	s.sig.set(evtAbort)
}

// Close terminates the worker and releases any still-owned requests.
// Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.sig.set(evtExit)
	<-s.done

	s.mu.Lock()
	s.current.Release()
	s.current = nil
	s.next.Release()
	s.next = nil
	s.mu.Unlock()

	log.Info().Msg("Hue HTTPS session closed")
}
