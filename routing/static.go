package routing

import (
	"errors"
	"regexp"

	variants "github.com/goliatone/go-variants"
)

var paramPlaceholder = regexp.MustCompile(`\[([^\]]+)\]`)

// PossibleAssignments returns the cartesian product of the allowed values of
// every descriptor in set. Descriptors are combined in id order.
func PossibleAssignments(set Set) []variants.Assignment {
	out := []variants.Assignment{{}}
	for _, d := range set.Descriptors() {
		values := d.Values()
		next := make([]variants.Assignment, 0, len(out)*len(values))
		for _, base := range out {
			for _, value := range values {
				a := base.Clone()
				a[d.ID()] = value
				next = append(next, a)
			}
		}
		out = next
	}
	return out
}

// StaticParams returns one token per combination of the values of the
// variants applicable to pattern, for pre-rendering every variant of a page.
// Dynamic segments such as "[slug]" in pattern match any route. A pattern
// that matches no route yields the single empty token.
func StaticParams(root *Node, pattern string) ([]string, error) {
	set, err := Match(root, paramPlaceholder.ReplaceAllString(pattern, "__${1}__"))
	if err != nil && !errors.Is(err, ErrNoMatch) {
		return nil, err
	}
	assignments := PossibleAssignments(set)
	tokens := make([]string, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		token, err := variants.Encode(a)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// StaticParamMaps wraps each token of StaticParams as a route parameter map.
func StaticParamMaps(root *Node, pattern string) ([]map[string]string, error) {
	tokens, err := StaticParams(root, pattern)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, map[string]string{variants.ParamName: token})
	}
	return out, nil
}
