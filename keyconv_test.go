package oidcstore

import (
	"testing"

	"github.com/gofrs/uuid/v5"
)

// TestStringKeysRoundTrip checks identity conversion for string keys
func TestStringKeysRoundTrip(t *testing.T) {
	conv := StringKeys{}
	key, err := conv.FromString("client-42")
	if err != nil {
		t.Fatalf("FromString failed: %v", err)
	}
	text, ok := conv.ToString(key)
	if !ok || text != "client-42" {
		t.Fatalf("round trip changed the key: %q", text)
	}
	if text, ok = conv.ToString(""); ok || text != "" {
		t.Fatalf("expected zero key to render as (\"\", false), got (%q, %v)", text, ok)
	}
}

// TestInt64KeysRoundTrip checks base-10 conversion for int64 keys
func TestInt64KeysRoundTrip(t *testing.T) {
	conv := Int64Keys{}
	key, err := conv.FromString("12345")
	if err != nil {
		t.Fatalf("FromString failed: %v", err)
	}
	if key != 12345 {
		t.Fatalf("expected 12345, got %d", key)
	}
	text, ok := conv.ToString(key)
	if !ok || text != "12345" {
		t.Fatalf("round trip changed the key: %q", text)
	}
}

// TestInt64KeysZeroAndInvalid checks the zero-value and error contracts
func TestInt64KeysZeroAndInvalid(t *testing.T) {
	conv := Int64Keys{}
	key, err := conv.FromString("")
	if err != nil || key != 0 {
		t.Fatalf("expected empty text to yield the zero key, got (%d, %v)", key, err)
	}
	if _, err = conv.FromString("not-a-number"); err == nil {
		t.Fatal("expected an error for an invalid literal")
	}
	if text, ok := conv.ToString(0); ok || text != "" {
		t.Fatalf("expected zero key to render as (\"\", false), got (%q, %v)", text, ok)
	}
}

// TestUUIDKeysRoundTrip checks canonical conversion for UUID keys
func TestUUIDKeysRoundTrip(t *testing.T) {
	conv := UUIDKeys{}
	id := uuid.Must(uuid.NewV4())
	text, ok := conv.ToString(id)
	if !ok {
		t.Fatal("expected a non-zero key to render")
	}
	key, err := conv.FromString(text)
	if err != nil {
		t.Fatalf("FromString failed: %v", err)
	}
	if key != id {
		t.Fatalf("round trip changed the key: %s vs %s", key, id)
	}
}

// TestUUIDKeysZeroAndInvalid checks the zero-value and error contracts
func TestUUIDKeysZeroAndInvalid(t *testing.T) {
	conv := UUIDKeys{}
	key, err := conv.FromString("")
	if err != nil || key != uuid.Nil {
		t.Fatalf("expected empty text to yield the nil UUID, got (%s, %v)", key, err)
	}
	if _, err = conv.FromString("not-a-uuid"); err == nil {
		t.Fatal("expected an error for an invalid literal")
	}
	if text, ok := conv.ToString(uuid.Nil); ok || text != "" {
		t.Fatalf("expected the nil UUID to render as (\"\", false), got (%q, %v)", text, ok)
	}
}
