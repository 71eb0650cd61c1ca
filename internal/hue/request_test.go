package hue

import (
	"errors"
	"testing"
)

func TestNewRequest(t *testing.T) {
	s := &Serialized{
		ResourceType: ResourceTypeLight,
		ResourceID:   testResourceID,
		Body:         []byte(`{"on":{"on":true}}`),
	}

	req, err := NewRequest(s)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if got, want := req.ResourcePath(), "light/"+testResourceID; got != want {
		t.Errorf("ResourcePath() = %q, want %q", got, want)
	}
	if string(req.Body()) != string(s.Body) {
		t.Errorf("Body() = %s, want %s", req.Body(), s.Body)
	}
	if len(req.Body()) != len(s.Body) {
		t.Errorf("Body() length = %d, want exact fit %d", len(req.Body()), len(s.Body))
	}

	// The request owns a copy; mutating serializer output must not leak in.
	s.Body[0] = 'X'
	if req.Body()[0] == 'X' {
		t.Error("request body aliases serializer buffer")
	}
}

func TestNewRequestInvalid(t *testing.T) {
	tests := []struct {
		name string
		s    *Serialized
		want error
	}{
		{
			name: "nil",
			s:    nil,
			want: ErrInvalidArgument,
		},
		{
			name: "unknown_resource_type",
			s:    &Serialized{ResourceType: "thermostat", ResourceID: testResourceID, Body: []byte("{}")},
			want: ErrInvalidArgument,
		},
		{
			name: "short_resource_id",
			s:    &Serialized{ResourceType: ResourceTypeLight, ResourceID: "abc123", Body: []byte("{}")},
			want: ErrInvalidArgument,
		},
		{
			name: "bad_grouping",
			s:    &Serialized{ResourceType: ResourceTypeLight, ResourceID: "ffffffffffff-ffff-ffff-ffff-ffffffff", Body: []byte("{}")},
			want: ErrInvalidArgument,
		},
		{
			name: "non_hex_characters",
			s:    &Serialized{ResourceType: ResourceTypeLight, ResourceID: "zzzzzzzz-ffff-ffff-ffff-ffffffffffff", Body: []byte("{}")},
			want: ErrInvalidArgument,
		},
		{
			name: "empty_body",
			s:    &Serialized{ResourceType: ResourceTypeLight, ResourceID: testResourceID},
			want: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRequest(tt.s); !errors.Is(err, tt.want) {
				t.Errorf("NewRequest() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidResourceID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		expected bool
	}{
		{"canonical", "0b9b4fc6-1b25-4d8f-8a42-0e1c5a3d9f10", true},
		{"all_f", testResourceID, true},
		{"uppercase_hex", "FFFFFFFF-FFFF-FFFF-FFFF-FFFFFFFFFFFF", true},
		{"empty", "", false},
		{"too_short", "0b9b4fc6-1b25-4d8f-8a42", false},
		{"braced", "{0b9b4fc6-1b25-4d8f-8a42-0e1c5a3d9f1}", false},
		{"missing_dashes", "0b9b4fc61b254d8f8a420e1c5a3d9f10aaaa", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidResourceID(tt.id); got != tt.expected {
				t.Errorf("ValidResourceID(%q) = %v, want %v", tt.id, got, tt.expected)
			}
		})
	}
}

func TestRequestReleaseIdempotent(t *testing.T) {
	req, err := NewRequest(&Serialized{
		ResourceType: ResourceTypeSmartScene,
		ResourceID:   testResourceID,
		Body:         []byte(`{"recall":{"action":"activate"}}`),
	})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	req.Release()
	req.Release() // no-op on already released

	if req.Body() != nil || req.ResourcePath() != "" {
		t.Error("Release() did not drop buffers")
	}

	var nilReq *Request
	nilReq.Release() // must not panic
}
