// Package presence feeds presence and broker connectivity events from MQTT
// into the event bus. Presence trackers publish loosely shaped JSON, so
// payload decoding is tolerant about field types.
package presence

import (
	"encoding/json"
	"fmt"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/tbaccus/hue-presence-control/internal/config"
	"github.com/tbaccus/hue-presence-control/internal/eventbus"
)

// Event is a single presence observation for one subject.
type Event struct {
	Subject    string  `mapstructure:"subject"`
	Present    bool    `mapstructure:"present"`
	Confidence float64 `mapstructure:"confidence"`
	Source     string  `mapstructure:"source"`
}

// ConnectivityEvent reports broker reachability transitions.
type ConnectivityEvent struct {
	Connected bool
}

// Source subscribes to a presence topic and republishes decoded events on
// the bus.
type Source struct {
	cfg    config.MQTTConfig
	bus    *eventbus.Bus
	client paho.Client
}

// NewSource creates a presence source bound to the given bus. Connect starts it.
func NewSource(cfg config.MQTTConfig, bus *eventbus.Bus) *Source {
	return &Source{cfg: cfg, bus: bus}
}

// Connect dials the broker and subscribes to the presence topic. The paho
// auto-reconnect loop owns retries after the first successful connect;
// connectivity transitions are surfaced as bus events either way.
func (s *Source) Connect() error {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(s.cfg.ConnectTimeout.Duration())

	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Info().Str("broker", s.cfg.Broker).Msg("MQTT connected")

		// Subscriptions do not survive a reconnect with a clean session,
		// so subscribe from the connect handler every time.
		tok := c.Subscribe(s.cfg.PresenceTopic, 0, s.onMessage)
		go func() {
			tok.Wait()
			if err := tok.Error(); err != nil {
				log.Error().Err(err).Str("topic", s.cfg.PresenceTopic).Msg("Presence subscribe failed")
			}
		}()

		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeConnectivity,
			Data: ConnectivityEvent{Connected: true},
		})
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeConnectivity,
			Data: ConnectivityEvent{Connected: false},
		})
	})

	s.client = paho.NewClient(opts)
	tok := s.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker, allowing a short drain for in-flight
// messages.
func (s *Source) Close() {
	if s.client == nil {
		return
	}
	s.client.Disconnect(250)
}

func (s *Source) onMessage(_ paho.Client, msg paho.Message) {
	evt, err := DecodePresence(msg.Topic(), msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed presence payload")
		return
	}

	log.Debug().
		Str("subject", evt.Subject).
		Bool("present", evt.Present).
		Msg("Presence event")

	s.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypePresence,
		Data: evt,
	})
}

// DecodePresence parses one presence message. Trackers disagree on field
// types ("present": true vs "1"), so decoding is weakly typed. A payload
// without a subject inherits the last topic segment.
func DecodePresence(topic string, payload []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	var evt Event
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &evt,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Event{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Event{}, fmt.Errorf("decoding presence fields: %w", err)
	}

	if evt.Subject == "" {
		if i := strings.LastIndexByte(topic, '/'); i >= 0 && i+1 < len(topic) {
			evt.Subject = topic[i+1:]
		}
	}
	if evt.Subject == "" {
		return Event{}, fmt.Errorf("presence event without subject on topic %q", topic)
	}

	return evt, nil
}
