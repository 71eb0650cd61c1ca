package hue

import (
	"fmt"

	"github.com/google/uuid"
)

// Request is an owned unit of work queued for transmission: an exact-fit copy
// of the JSON body plus the "<type>/<id>" path fragment appended to the
// session's URL base. Ownership transfers with the pointer; a request is held
// by exactly one of the caller, the session's current slot or its next slot.
type Request struct {
	resourcePath string
	body         []byte
}

// ValidResourceID reports whether id is a 36-character 8-4-4-4-12 hex-grouped
// resource ID as assigned by the bridge.
func ValidResourceID(id string) bool {
	if len(id) != ResourceIDLength {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NewRequest builds a request from serializer output. This is the only place
// a malformed resource ID is caught before it reaches the network.
func NewRequest(s *Serialized) (*Request, error) {
	if s == nil {
		return nil, fmt.Errorf("nil serialized command: %w", ErrInvalidArgument)
	}
	switch s.ResourceType {
	case ResourceTypeLight, ResourceTypeGroupedLight, ResourceTypeSmartScene, ResourceTypeScene:
	default:
		return nil, fmt.Errorf("resource type %q: %w", s.ResourceType, ErrInvalidArgument)
	}
	if !ValidResourceID(s.ResourceID) {
		return nil, fmt.Errorf("resource ID %q: %w", s.ResourceID, ErrInvalidArgument)
	}
	if len(s.Body) == 0 {
		return nil, fmt.Errorf("empty request body: %w", ErrInvalidArgument)
	}

	body := make([]byte, len(s.Body))
	copy(body, s.Body)

	want := len(s.ResourceType) + 1 + len(s.ResourceID)
	path := fmt.Sprintf("%s/%s", s.ResourceType, s.ResourceID)
	if len(path) != want {
		// Unreachable with format-checked inputs.
		return nil, fmt.Errorf("resource path length %d, expected %d: %w", len(path), want, ErrInvalidSize)
	}

	return &Request{
		resourcePath: path,
		body:         body,
	}, nil
}

// ResourcePath returns the "<type>/<id>" URL fragment.
func (r *Request) ResourcePath() string {
	return r.resourcePath
}

// Body returns the JSON request body.
func (r *Request) Body() []byte {
	return r.body
}

// Release drops the request's buffers. Idempotent; safe on a nil request.
// A released request must not be queued again.
func (r *Request) Release() {
	if r == nil {
		return
	}
	r.body = nil
	r.resourcePath = ""
}
