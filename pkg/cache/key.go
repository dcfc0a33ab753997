package cache

import (
	"strings"
)

// keyPrefix namespaces every serialised key.
const keyPrefix = "pokeref"

// Key is an ordered list of tokens identifying a cached query.
// Keys form a hierarchy: [berries] is a prefix of [berries list] and
// [berries detail cheri].
type Key []string

// NewKey builds a key from tokens.
func NewKey(tokens ...string) Key {
	return Key(tokens)
}

// Append returns a new key extended by tokens. The receiver is not modified.
func (k Key) Append(tokens ...string) Key {
	out := make(Key, 0, len(k)+len(tokens))
	out = append(out, k...)
	return append(out, tokens...)
}

// HasPrefix reports whether prefix matches the leading tokens of k.
// Matching is token-wise: [berries] is a prefix of [berries list] but
// [berr] is not.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, token := range prefix {
		if k[i] != token {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same tokens.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// String generates a deterministic key string.
// Format: pokeref:token1:token2
//
// Example:
//
//	pokeref:berries:detail:cheri
//
// Tokens are escaped so that ":" only ever separates tokens, which makes
// prefix matching on the string form token-wise as well.
func (k Key) String() string {
	parts := make([]string, 0, len(k)+1)
	parts = append(parts, keyPrefix)
	for _, token := range k {
		parts = append(parts, escapeToken(token))
	}
	return strings.Join(parts, ":")
}

// ParseKey reverses String.
func ParseKey(s string) (Key, bool) {
	parts := strings.Split(s, ":")
	if len(parts) == 0 || parts[0] != keyPrefix {
		return nil, false
	}
	key := make(Key, 0, len(parts)-1)
	for _, part := range parts[1:] {
		key = append(key, unescapeToken(part))
	}
	return key, true
}

var (
	tokenEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	tokenUnescaper = strings.NewReplacer("%3A", ":", "%25", "%")
)

func escapeToken(token string) string {
	return tokenEscaper.Replace(token)
}

func unescapeToken(token string) string {
	return tokenUnescaper.Replace(token)
}
