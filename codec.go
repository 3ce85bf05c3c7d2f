package oidcstore

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/TwiN/gocache/v2"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
)

// Namespace tags distinguishing which logical field a cached decode result
// belongs to. Two fields holding identical text must not share entries, as
// their decode rules may differ.
const (
	nsAppDisplayNames            = "app:display_names"
	nsAppPermissions             = "app:permissions"
	nsAppRedirectURIs            = "app:redirect_uris"
	nsAppPostLogoutRedirectURIs  = "app:post_logout_redirect_uris"
	nsAppRequirements            = "app:requirements"
	nsAppProperties              = "app:properties"
	nsAppSettings                = "app:settings"
	nsAuthorizationScopes        = "authorization:scopes"
	nsAuthorizationProperties    = "authorization:properties"
	nsScopeDisplayNames          = "scope:display_names"
	nsScopeDescriptions          = "scope:descriptions"
	nsScopeResources             = "scope:resources"
	nsScopeProperties            = "scope:properties"
	nsTokenProperties            = "token:properties"
)

const (
	cacheTTL     = time.Minute
	cacheMaxSize = 4096
)

// Codec converts between denormalized JSON text columns and their semantic
// in-memory collections. Decode results are cached keyed by namespace tag
// plus raw source text with a short TTL; decoding is a pure function of
// the text, so the cache is a performance optimization only. Callers
// always receive their own copy of a decoded collection, never the cached
// instance, so mutating a result cannot poison later decodes or race with
// other goroutines reading the same text.
type Codec struct {
	cache *gocache.Cache
}

// NewCodec creates a Codec with a bounded LRU decode cache.
func NewCodec() *Codec {
	return &Codec{
		cache: gocache.NewCache().
			WithMaxSize(cacheMaxSize).
			WithEvictionPolicy(gocache.LeastRecentlyUsed),
	}
}

func cacheKey(ns string, text string) string {
	return ns + "\x00" + text
}

// decodeArray parses a JSON array of strings, dropping elements that are
// null or empty and preserving the order of the rest. Nil or empty text
// yields an empty sequence.
func (c *Codec) decodeArray(ns string, text *string) ([]string, error) {
	if text == nil || *text == "" {
		return nil, nil
	}
	key := cacheKey(ns, *text)
	if cached, ok := c.cache.Get(key); ok {
		return slices.Clone(cached.([]string)), nil
	}
	var raw []*string
	if err := json.Unmarshal([]byte(*text), &raw); err != nil {
		return nil, errors.Wrapf(err, "malformed JSON array in %s", ns)
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if e != nil && *e != "" {
			out = append(out, *e)
		}
	}
	c.cache.SetWithTTL(key, out, cacheTTL)
	return slices.Clone(out), nil
}

// decodeLocaleMap parses a JSON object whose keys are locale identifiers.
// Entries with null or empty values are dropped; keys that are not valid
// locale identifiers are a data-integrity error.
func (c *Codec) decodeLocaleMap(ns string, text *string) (map[string]string, error) {
	if text == nil || *text == "" {
		return nil, nil
	}
	key := cacheKey(ns, *text)
	if cached, ok := c.cache.Get(key); ok {
		return maps.Clone(cached.(map[string]string)), nil
	}
	var raw map[string]*string
	if err := json.Unmarshal([]byte(*text), &raw); err != nil {
		return nil, errors.Wrapf(err, "malformed JSON object in %s", ns)
	}
	out := make(map[string]string, len(raw))
	for locale, value := range raw {
		if _, err := language.Parse(locale); err != nil {
			return nil, errors.Wrapf(err, "invalid locale identifier '%s' in %s", locale, ns)
		}
		if value == nil || *value == "" {
			continue
		}
		out[locale] = *value
	}
	c.cache.SetWithTTL(key, out, cacheTTL)
	return maps.Clone(out), nil
}

// decodeStringMap parses a JSON object of string values, retaining all
// entries. Null values decode to the empty string.
func (c *Codec) decodeStringMap(ns string, text *string) (map[string]string, error) {
	if text == nil || *text == "" {
		return nil, nil
	}
	key := cacheKey(ns, *text)
	if cached, ok := c.cache.Get(key); ok {
		return maps.Clone(cached.(map[string]string)), nil
	}
	var raw map[string]*string
	if err := json.Unmarshal([]byte(*text), &raw); err != nil {
		return nil, errors.Wrapf(err, "malformed JSON object in %s", ns)
	}
	out := make(map[string]string, len(raw))
	for k, value := range raw {
		if value == nil {
			out[k] = ""
			continue
		}
		out[k] = *value
	}
	c.cache.SetWithTTL(key, out, cacheTTL)
	return maps.Clone(out), nil
}

// decodeRawMap parses a JSON object of opaque values. All entries are
// retained, including explicit nulls and empty strings.
func (c *Codec) decodeRawMap(ns string, text *string) (map[string]json.RawMessage, error) {
	if text == nil || *text == "" {
		return nil, nil
	}
	key := cacheKey(ns, *text)
	if cached, ok := c.cache.Get(key); ok {
		return maps.Clone(cached.(map[string]json.RawMessage)), nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*text), &out); err != nil {
		return nil, errors.Wrapf(err, "malformed JSON object in %s", ns)
	}
	c.cache.SetWithTTL(key, out, cacheTTL)
	return maps.Clone(out), nil
}

// encodeJSON renders v as compact JSON without HTML escaping, so URIs and
// similar values are stored verbatim.
func encodeJSON(v any) (*string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	text := string(bytes.TrimRight(buf.Bytes(), "\n"))
	return &text, nil
}

// encodeArray encodes a sequence of strings. An empty sequence encodes to
// nil so the column is cleared rather than holding an empty literal.
func encodeArray(values []string) (*string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return encodeJSON(values)
}

// encodeStringMap encodes a string-keyed map of strings, nil for empty.
func encodeStringMap(values map[string]string) (*string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return encodeJSON(values)
}

// encodeRawMap encodes a string-keyed map of opaque JSON values, nil for
// empty.
func encodeRawMap(values map[string]json.RawMessage) (*string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return encodeJSON(values)
}
