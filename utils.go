package castline

import (
	"encoding/json"
	"errors"
	"maps"
	"regexp"
	"strings"
)

var ErrInvalidIdentity = errors.New("invalid identity")

var identityPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeIdentity canonicalizes an email-like identity.
//
// Input is trimmed, lowercased and stripped of all whitespace. Extra '@'
// characters are repaired: everything after the last '@' is the domain and
// the preceding '@'-separated segments are joined with '.' to form the local
// part. The result is idempotent under repeated application.
func NormalizeIdentity(raw string) (string, error) {
	s := strings.Join(strings.Fields(strings.ToLower(raw)), "")

	if strings.Count(s, "@") > 1 {
		at := strings.LastIndex(s, "@")
		segments := []string{}
		for _, seg := range strings.Split(s[:at], "@") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
		s = strings.Join(segments, ".") + s[at:]
	}

	if !identityPattern.MatchString(s) {
		return "", ErrInvalidIdentity
	}
	return s, nil
}

func IsIdentity(s string) bool {
	normalized, err := NormalizeIdentity(s)
	return err == nil && normalized == s
}

// SanitizeIdentity turns an identity into a cache key suffix.
func SanitizeIdentity(identity string) string {
	var b strings.Builder
	b.Grow(len(identity))
	for i := 0; i < len(identity); i++ {
		c := identity[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Merge returns a shallow merge of patch over base. Neither input is modified.
func Merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	maps.Copy(out, base)
	maps.Copy(out, patch)
	return out
}

// Clone deep-copies a document through its JSON form, which is also how
// every store persists it.
func (d Document) Clone() (Document, error) {
	if d == nil {
		return Document{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

func ParseDocument(raw string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
