package hue

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Value bounds documented by the Hue CLIP v2 API.
const (
	minBrightnessSet   = 1
	maxBrightnessSet   = 100
	minBrightnessDelta = 0
	maxBrightnessDelta = 100

	minColorTempSet   = 153
	maxColorTempSet   = 500
	minColorTempDelta = 0
	maxColorTempDelta = 347
)

// Serialized is the output of command serialization: a resource locator plus
// a bounded JSON body ready to become a request.
type Serialized struct {
	ResourceType string
	ResourceID   string
	Body         []byte
}

// clamp forces value into [minimum, maximum] and warns when it had to.
// Clamping is a diagnosed correction, never a failure.
func clamp(value, minimum, maximum uint16) uint16 {
	if value > maximum {
		log.Warn().Uint16("value", value).Uint16("max", maximum).Msg("Value too large, clamped")
		return maximum
	}
	if value < minimum {
		log.Warn().Uint16("value", value).Uint16("min", minimum).Msg("Value too small, clamped")
		return minimum
	}
	return value
}

// gamutFraction renders a raw/10000 fixed-point fraction. Values at or above
// 1.0 collapse to exactly "1.0"; below that the fraction keeps four digits.
func gamutFraction(raw uint16) string {
	if raw >= 10000 {
		return "1.0"
	}
	return fmt.Sprintf("0.%04d", raw)
}

// SerializeLight converts a light command into its JSON body. The "on" clause
// is always emitted; dimming, color temperature and color clauses only when
// their action or flag requests them.
func SerializeLight(cmd *LightCommand) (*Serialized, error) {
	return serializeLightAs(ResourceTypeLight, cmd)
}

// SerializeGroupedLight serializes a grouped-light command. Grouped lights
// use the light schema verbatim; only the resource type tag differs.
func SerializeGroupedLight(cmd *LightCommand) (*Serialized, error) {
	return serializeLightAs(ResourceTypeGroupedLight, cmd)
}

func serializeLightAs(resourceType string, cmd *LightCommand) (*Serialized, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil light command: %w", ErrInvalidArgument)
	}
	if cmd.ResourceID == "" {
		return nil, fmt.Errorf("empty resource ID: %w", ErrInvalidArgument)
	}

	var buf jsonBuffer
	buf.reset()

	on := true
	if cmd.Power != nil {
		on = *cmd.Power
	}
	if err := buf.appendf(`{"on":{"on":%t}`, on); err != nil {
		return nil, err
	}

	var err error
	switch cmd.BrightnessAction {
	case ActionSet:
		err = buf.appendf(`,"dimming":{"brightness":%d}`,
			clamp(uint16(cmd.Brightness), minBrightnessSet, maxBrightnessSet))
	case ActionAdd:
		err = buf.appendf(`,"dimming_delta":{"action":"up","brightness_delta":%d}`,
			clamp(uint16(cmd.Brightness), minBrightnessDelta, maxBrightnessDelta))
	case ActionSubtract:
		err = buf.appendf(`,"dimming_delta":{"action":"down","brightness_delta":%d}`,
			clamp(uint16(cmd.Brightness), minBrightnessDelta, maxBrightnessDelta))
	}
	if err != nil {
		return nil, err
	}

	switch cmd.ColorTempAction {
	case ActionSet:
		err = buf.appendf(`,"color_temperature":{"mirek":%d}`,
			clamp(cmd.ColorTemp, minColorTempSet, maxColorTempSet))
	case ActionAdd:
		err = buf.appendf(`,"color_temperature_delta":{"action":"up","mirek_delta":%d}`,
			clamp(cmd.ColorTemp, minColorTempDelta, maxColorTempDelta))
	case ActionSubtract:
		err = buf.appendf(`,"color_temperature_delta":{"action":"down","mirek_delta":%d}`,
			clamp(cmd.ColorTemp, minColorTempDelta, maxColorTempDelta))
	}
	if err != nil {
		return nil, err
	}

	if cmd.SetColor {
		err = buf.appendf(`,"color":{"xy":{"x":%s,"y":%s}}`,
			gamutFraction(cmd.GamutX), gamutFraction(cmd.GamutY))
		if err != nil {
			return nil, err
		}
	}

	if err := buf.appendf("}"); err != nil {
		return nil, err
	}

	return &Serialized{
		ResourceType: resourceType,
		ResourceID:   cmd.ResourceID,
		Body:         append([]byte(nil), buf.bytes()...),
	}, nil
}

// SerializeSmartScene serializes a smart-scene recall. The body is one of two
// fixed strings, no clamping involved.
func SerializeSmartScene(cmd *SceneCommand) (*Serialized, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil scene command: %w", ErrInvalidArgument)
	}
	if cmd.ResourceID == "" {
		return nil, fmt.Errorf("empty resource ID: %w", ErrInvalidArgument)
	}

	var buf jsonBuffer
	buf.reset()

	action := "activate"
	if cmd.Deactivate {
		action = "deactivate"
	}
	if err := buf.appendf(`{"recall":{"action":"%s"}}`, action); err != nil {
		return nil, err
	}

	return &Serialized{
		ResourceType: ResourceTypeSmartScene,
		ResourceID:   cmd.ResourceID,
		Body:         append([]byte(nil), buf.bytes()...),
	}, nil
}
