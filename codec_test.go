package oidcstore

import (
	"testing"
)

func strPtr(s string) *string {
	return &s
}

// TestDecodeArrayDropsNullAndEmptyElements checks that null and empty
// elements are skipped while order is preserved
func TestDecodeArrayDropsNullAndEmptyElements(t *testing.T) {
	c := NewCodec()
	out, err := c.decodeArray("test:array", strPtr(`["", null, "DoThis", null, "DoThat"]`))
	if err != nil {
		t.Fatalf("decodeArray failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 elements, got %d: %v", len(out), out)
	}
	if out[0] != "DoThis" || out[1] != "DoThat" {
		t.Fatalf("unexpected elements: %v", out)
	}
}

// TestDecodeArrayEmptyText checks that nil and empty text yield an empty
// sequence
func TestDecodeArrayEmptyText(t *testing.T) {
	c := NewCodec()
	out, err := c.decodeArray("test:array", nil)
	if err != nil {
		t.Fatalf("decodeArray(nil) failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty sequence, got %v", out)
	}
	out, err = c.decodeArray("test:array", strPtr(""))
	if err != nil {
		t.Fatalf("decodeArray(\"\") failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty sequence, got %v", out)
	}
}

// TestDecodeArrayMalformed checks that invalid JSON surfaces an error
// instead of being defaulted
func TestDecodeArrayMalformed(t *testing.T) {
	c := NewCodec()
	if _, err := c.decodeArray("test:array", strPtr(`[not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

// TestDecodeLocaleMapDropsEmptyValues checks that entries with null or
// empty values are dropped
func TestDecodeLocaleMapDropsEmptyValues(t *testing.T) {
	c := NewCodec()
	out, err := c.decodeLocaleMap(
		"test:localemap",
		strPtr(`{"af":"name1","ar":"name2","az":"","be":"name3","ca":null}`),
	)
	if err != nil {
		t.Fatalf("decodeLocaleMap failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(out), out)
	}
	for locale, want := range map[string]string{"af": "name1", "ar": "name2", "be": "name3"} {
		if out[locale] != want {
			t.Fatalf("expected %s -> %s, got %s", locale, want, out[locale])
		}
	}
}

// TestDecodeRawMapRetainsNullAndEmptyValues checks that the opaque
// properties map keeps every entry, including nulls and empty strings
func TestDecodeRawMapRetainsNullAndEmptyValues(t *testing.T) {
	c := NewCodec()
	out, err := c.decodeRawMap("test:rawmap", strPtr(`{"a":"prop1","c":"","e":null}`))
	if err != nil {
		t.Fatalf("decodeRawMap failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(out), out)
	}
	if string(out["a"]) != `"prop1"` {
		t.Fatalf("unexpected value for a: %s", out["a"])
	}
	if string(out["c"]) != `""` {
		t.Fatalf("unexpected value for c: %s", out["c"])
	}
	if string(out["e"]) != `null` {
		t.Fatalf("unexpected value for e: %s", out["e"])
	}
}

// TestDecodeStringMapRetainsAllEntries checks that the settings map keeps
// every entry, decoding null values to the empty string
func TestDecodeStringMapRetainsAllEntries(t *testing.T) {
	c := NewCodec()
	out, err := c.decodeStringMap("test:stringmap", strPtr(`{"a":"x","b":"","c":null}`))
	if err != nil {
		t.Fatalf("decodeStringMap failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(out), out)
	}
	if out["a"] != "x" {
		t.Fatalf("unexpected value for a: %q", out["a"])
	}
	if v, ok := out["b"]; !ok || v != "" {
		t.Fatalf("expected b -> \"\", got (%q, %v)", v, ok)
	}
	if v, ok := out["c"]; !ok || v != "" {
		t.Fatalf("expected c -> \"\", got (%q, %v)", v, ok)
	}
}

// TestEncodeEmptyCollectionsToNull checks the round-trip-to-null law:
// empty collections clear the column instead of storing an empty literal
func TestEncodeEmptyCollectionsToNull(t *testing.T) {
	if text, err := encodeArray(nil); err != nil || text != nil {
		t.Fatalf("encodeArray(nil) = (%v, %v), expected (nil, nil)", text, err)
	}
	if text, err := encodeArray([]string{}); err != nil || text != nil {
		t.Fatalf("encodeArray(empty) = (%v, %v), expected (nil, nil)", text, err)
	}
	if text, err := encodeStringMap(nil); err != nil || text != nil {
		t.Fatalf("encodeStringMap(nil) = (%v, %v), expected (nil, nil)", text, err)
	}
	if text, err := encodeRawMap(nil); err != nil || text != nil {
		t.Fatalf("encodeRawMap(nil) = (%v, %v), expected (nil, nil)", text, err)
	}
}

// TestArrayRoundTrip checks that decode(encode(x)) reproduces the logical
// collection for non-empty input
func TestArrayRoundTrip(t *testing.T) {
	c := NewCodec()
	in := []string{"read", "write", "openid"}
	text, err := encodeArray(in)
	if err != nil {
		t.Fatalf("encodeArray failed: %v", err)
	}
	if text == nil {
		t.Fatal("encodeArray returned nil for non-empty input")
	}
	out, err := c.decodeArray("test:roundtrip", text)
	if err != nil {
		t.Fatalf("decodeArray failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d elements, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("element %d: expected %s, got %s", i, in[i], out[i])
		}
	}
}

// TestEncodeArrayDoesNotEscapeURIs checks that URIs are stored verbatim
// without HTML escaping
func TestEncodeArrayDoesNotEscapeURIs(t *testing.T) {
	text, err := encodeArray([]string{"https://example.com/cb?a=1&b=2"})
	if err != nil {
		t.Fatalf("encodeArray failed: %v", err)
	}
	if *text != `["https://example.com/cb?a=1&b=2"]` {
		t.Fatalf("unexpected encoding: %s", *text)
	}
}

// TestDecodeCacheIsTransparent checks that a cache hit returns the same
// result as the initial parse
func TestDecodeCacheIsTransparent(t *testing.T) {
	c := NewCodec()
	text := strPtr(`["a","b"]`)
	first, err := c.decodeArray("test:cache", text)
	if err != nil {
		t.Fatalf("decodeArray failed: %v", err)
	}
	second, err := c.decodeArray("test:cache", text)
	if err != nil {
		t.Fatalf("cached decodeArray failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("cache changed the result: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cache changed the result: %v vs %v", first, second)
		}
	}
}

// TestDecodedCollectionsAreCallerOwned checks that mutating a decoded
// collection does not leak into later decodes of the same text
func TestDecodedCollectionsAreCallerOwned(t *testing.T) {
	c := NewCodec()

	arrayText := strPtr(`["read","write"]`)
	first, err := c.decodeArray("test:owned:array", arrayText)
	if err != nil {
		t.Fatalf("decodeArray failed: %v", err)
	}
	first[0] = "admin"
	second, err := c.decodeArray("test:owned:array", arrayText)
	if err != nil {
		t.Fatalf("cached decodeArray failed: %v", err)
	}
	if second[0] != "read" || second[1] != "write" {
		t.Fatalf("mutation leaked into a later decode: %v", second)
	}

	mapText := strPtr(`{"af":"name1"}`)
	firstMap, err := c.decodeLocaleMap("test:owned:localemap", mapText)
	if err != nil {
		t.Fatalf("decodeLocaleMap failed: %v", err)
	}
	firstMap["af"] = "tampered"
	firstMap["ar"] = "added"
	secondMap, err := c.decodeLocaleMap("test:owned:localemap", mapText)
	if err != nil {
		t.Fatalf("cached decodeLocaleMap failed: %v", err)
	}
	if len(secondMap) != 1 || secondMap["af"] != "name1" {
		t.Fatalf("mutation leaked into a later decode: %v", secondMap)
	}

	rawText := strPtr(`{"a":"prop1"}`)
	firstRaw, err := c.decodeRawMap("test:owned:rawmap", rawText)
	if err != nil {
		t.Fatalf("decodeRawMap failed: %v", err)
	}
	delete(firstRaw, "a")
	secondRaw, err := c.decodeRawMap("test:owned:rawmap", rawText)
	if err != nil {
		t.Fatalf("cached decodeRawMap failed: %v", err)
	}
	if len(secondRaw) != 1 || string(secondRaw["a"]) != `"prop1"` {
		t.Fatalf("mutation leaked into a later decode: %v", secondRaw)
	}
}

// TestApplicationSettingsRoundTrip checks the settings accessor pair,
// including null retention and clearing via an empty map
func TestApplicationSettingsRoundTrip(t *testing.T) {
	s := &ApplicationStore[int64]{conv: Int64Keys{}, codec: NewCodec()}
	app := s.Instantiate()

	if err := s.SetSettings(app, map[string]string{"ui:theme": "dark", "ui:banner": ""}); err != nil {
		t.Fatalf("SetSettings failed: %v", err)
	}
	if app.Settings == nil {
		t.Fatal("expected a non-nil settings column")
	}
	out, err := s.Settings(app)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(out), out)
	}
	if out["ui:theme"] != "dark" {
		t.Fatalf("unexpected value for ui:theme: %q", out["ui:theme"])
	}
	if v, ok := out["ui:banner"]; !ok || v != "" {
		t.Fatalf("expected ui:banner -> \"\", got (%q, %v)", v, ok)
	}

	if err = s.SetSettings(app, nil); err != nil {
		t.Fatalf("SetSettings(nil) failed: %v", err)
	}
	if app.Settings != nil {
		t.Fatal("expected an empty map to clear the column")
	}
}

// TestEscapeLike checks that LIKE wildcards are escaped so needles match
// literally
func TestEscapeLike(t *testing.T) {
	for in, want := range map[string]string{
		"plain":               "plain",
		"100%":                "100|%",
		"under_score":         "under|_score",
		"pipe|char":           "pipe||char",
		"https://a/cb?x=50%2": "https://a/cb?x=50|%2",
	} {
		if got := escapeLike(in); got != want {
			t.Fatalf("escapeLike(%q) = %q, expected %q", in, got, want)
		}
	}
}
