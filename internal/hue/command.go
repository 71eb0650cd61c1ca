// Package hue contains the typed command model for Hue CLIP v2 resources and
// the bounded JSON serialization that turns commands into request bodies.
package hue

// Resource type tags used in CLIP v2 resource paths.
const (
	ResourceTypeLight        = "light"
	ResourceTypeGroupedLight = "grouped_light"
	ResourceTypeSmartScene   = "smart_scene"
	ResourceTypeScene        = "scene" // reserved, recall payload not implemented yet
)

// ResourceIDLength is the length of a bridge-assigned resource ID
// (8-4-4-4-12 hex groups).
const ResourceIDLength = 36

// Action describes how a numeric axis (brightness, color temperature) should
// be adjusted. ActionNone suppresses the corresponding JSON clause entirely.
type Action uint8

const (
	ActionNone Action = iota
	ActionSet
	ActionAdd
	ActionSubtract
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSet:
		return "set"
	case ActionAdd:
		return "add"
	case ActionSubtract:
		return "subtract"
	default:
		return "unknown"
	}
}

// LightCommand describes the desired state of a light or grouped-light
// resource. The two resource types share a schema; only the type tag in the
// resource path differs.
//
// Power is tri-state: nil means unspecified, which serializes as on. Out of
// range numeric values are clamped during serialization, not rejected.
type LightCommand struct {
	ResourceID string

	Power *bool // nil defaults to on

	BrightnessAction Action
	Brightness       uint8 // set: clamped to [1,100]; add/subtract: [0,100]

	ColorTempAction Action
	ColorTemp       uint16 // mirek; set: clamped to [153,500]; add/subtract: [0,347]

	SetColor bool
	GamutX   uint16 // CIE x as raw/10000; >=10000 serializes as 1.0
	GamutY   uint16 // CIE y as raw/10000; >=10000 serializes as 1.0
}

// SceneCommand recalls a smart scene. Deactivate false (the default) emits an
// activate recall.
type SceneCommand struct {
	ResourceID string
	Deactivate bool
}
