package variants

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// TokenPrefix marks a path segment as an encoded assignment.
	TokenPrefix = "__v-"
	// KeyValueSeparator joins a variant id with its value.
	KeyValueSeparator = "."
	// ItemSeparator joins id/value pairs.
	ItemSeparator = ".."
	// ParamName is the route parameter carrying the token.
	ParamName = "variants"
)

var (
	itemPattern  = `[^.]+\.[^.]+`
	tokenPattern = regexp.MustCompile(`^` + regexp.QuoteMeta(TokenPrefix) + itemPattern + `(?:\.\.` + itemPattern + `)*$`)
)

// Encode serialises a into a percent-encoded path segment. Entries are sorted
// by id so equal assignments always produce the same token.
func Encode(a Assignment) (string, error) {
	ids := a.IDs()
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		value := a[id]
		if err := checkTokenPart("id", id); err != nil {
			return "", err
		}
		if err := checkTokenPart("value", value); err != nil {
			return "", err
		}
		items = append(items, id+KeyValueSeparator+value)
	}
	return url.PathEscape(TokenPrefix + strings.Join(items, ItemSeparator)), nil
}

// EncodeApplicable projects a onto the ids of applicable before encoding.
func EncodeApplicable(a Assignment, applicable []*Descriptor) (string, error) {
	ids := make([]string, 0, len(applicable))
	for _, d := range applicable {
		if d != nil {
			ids = append(ids, d.ID())
		}
	}
	return Encode(a.Pick(ids...))
}

// ValidateID reports whether id can be carried in a token.
func ValidateID(id string) error {
	return checkTokenPart("id", id)
}

// ValidateValue reports whether value can be carried in a token.
func ValidateValue(value string) error {
	return checkTokenPart("value", value)
}

func checkTokenPart(kind, part string) error {
	if part == "" {
		return fmt.Errorf("%w: variant %s must not be empty", ErrInvalidToken, kind)
	}
	if strings.Contains(part, KeyValueSeparator) {
		return fmt.Errorf("%w: variant %s cannot include %q (got %q)", ErrInvalidToken, kind, KeyValueSeparator, part)
	}
	return nil
}

// ParseToken decodes token and reports malformed input as ErrInvalidToken.
func ParseToken(token string) (Assignment, error) {
	raw, err := url.PathUnescape(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if raw == TokenPrefix {
		return Assignment{}, nil
	}
	if !tokenPattern.MatchString(raw) {
		return nil, fmt.Errorf("%w: %q does not match %s", ErrInvalidToken, token, tokenPattern)
	}
	body := strings.TrimPrefix(raw, TokenPrefix)
	out := Assignment{}
	for _, item := range strings.Split(body, ItemSeparator) {
		id, value, _ := strings.Cut(item, KeyValueSeparator)
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidToken, id)
		}
		out[id] = value
	}
	return out, nil
}

// Decode is the lenient form of ParseToken: malformed tokens are logged and
// decode to an empty assignment.
func Decode(token string) Assignment {
	out, err := ParseToken(token)
	if err != nil {
		Logger().Warn("variants: token does not match expected pattern, defaulting to empty",
			"token", token,
			"error", err,
		)
		return Assignment{}
	}
	return out
}

// IsToken reports whether segment carries an encoded assignment.
func IsToken(segment string) bool {
	raw, err := url.PathUnescape(segment)
	if err != nil {
		return false
	}
	return raw == TokenPrefix || tokenPattern.MatchString(raw)
}

// SplitTokenPath splits a request path whose first segment is a token into
// the token and the remaining path. ok is false when the first segment is not
// a token.
func SplitTokenPath(path string) (token, rest string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/")
	first, tail, found := strings.Cut(trimmed, "/")
	if !IsToken(first) {
		return "", path, false
	}
	if !found {
		return first, "/", true
	}
	return first, "/" + tail, true
}

// HasTokenSegment reports whether any segment of path is a token.
func HasTokenSegment(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment != "" && IsToken(segment) {
			return true
		}
	}
	return false
}
