package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbaccus/hue-presence-control/internal/config"
	"github.com/tbaccus/hue-presence-control/internal/eventbus"
	"github.com/tbaccus/hue-presence-control/internal/hue"
	"github.com/tbaccus/hue-presence-control/internal/presence"
)

// commandQueue is the slice of the HTTPS session the rule engine drives.
type commandQueue interface {
	QueueLightUpdate(*hue.LightCommand) error
	QueueGroupedLightUpdate(*hue.LightCommand) error
	QueueSceneRecall(*hue.SceneCommand) error
	HandleConnected()
	HandleDisconnected()
}

// Rules turns presence transitions into queued bridge commands and forwards
// connectivity transitions to the session's network gate.
type Rules struct {
	session commandQueue
	rules   []config.RuleConfig

	mu      sync.Mutex
	present map[string]bool // last observed state per subject
}

// NewRules creates the rule engine for one session.
func NewRules(rules []config.RuleConfig, session commandQueue) *Rules {
	return &Rules{
		session: session,
		rules:   rules,
		present: make(map[string]bool),
	}
}

// Register subscribes the engine to the bus.
func (r *Rules) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeConnectivity, r.handleConnectivity)
	bus.Subscribe(eventbus.EventTypePresence, r.handlePresence)
}

func (r *Rules) handleConnectivity(e eventbus.Event) {
	evt, ok := e.Data.(presence.ConnectivityEvent)
	if !ok {
		return
	}
	if evt.Connected {
		r.session.HandleConnected()
	} else {
		r.session.HandleDisconnected()
	}
}

func (r *Rules) handlePresence(e eventbus.Event) {
	evt, ok := e.Data.(presence.Event)
	if !ok {
		return
	}

	transition, fired := r.transition(evt.Subject, evt.Present)
	if !fired {
		return
	}

	log.Info().
		Str("subject", evt.Subject).
		Str("transition", transition).
		Msg("Presence transition")

	for _, rule := range r.rules {
		if rule.Subject != evt.Subject || rule.On != transition {
			continue
		}
		r.apply(rule)
	}
}

// transition records the observation and reports whether it fired. Repeat
// reports of the same state are idle keepalives, not transitions. The first
// report of a subject fires only when it is an arrival, so a restart with
// everyone absent does not switch lights off.
func (r *Rules) transition(subject string, present bool) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.present[subject]
	r.present[subject] = present

	if seen && prev == present {
		return "", false
	}
	if !seen && !present {
		return "", false
	}
	if present {
		return "arrive", true
	}
	return "depart", true
}

func (r *Rules) apply(rule config.RuleConfig) {
	var err error
	switch rule.Resource {
	case hue.ResourceTypeSmartScene:
		err = r.session.QueueSceneRecall(&hue.SceneCommand{
			ResourceID: rule.ID,
			Deactivate: rule.Deactivate,
		})
	case hue.ResourceTypeLight, hue.ResourceTypeGroupedLight:
		cmd := &hue.LightCommand{
			ResourceID: rule.ID,
			Power:      rule.Power,
		}
		if rule.Brightness != nil {
			cmd.BrightnessAction = hue.ActionSet
			cmd.Brightness = clampUint8(*rule.Brightness)
		}
		if rule.ColorTemp != nil {
			cmd.ColorTempAction = hue.ActionSet
			cmd.ColorTemp = clampUint16(*rule.ColorTemp)
		}
		if rule.Resource == hue.ResourceTypeGroupedLight {
			err = r.session.QueueGroupedLightUpdate(cmd)
		} else {
			err = r.session.QueueLightUpdate(cmd)
		}
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("resource", rule.Resource).
			Str("id", rule.ID).
			Msg("Failed to queue rule command")
	}
}

// Config carries rule numbers as int; the command model is unsigned. Range
// clamping to bridge limits happens later, during serialization.
func clampUint8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampUint16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
