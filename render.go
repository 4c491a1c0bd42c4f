package variants

import (
	"context"
	"fmt"
)

// ProvideToken decodes token and publishes it to every reader in the request
// scope. Decodes are memoised per token; a second call with a token decoding
// to a different assignment fails with reqlocal.ErrConflict.
func ProvideToken(ctx context.Context, token string) (Assignment, error) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	assigned := s.decode(token)
	if err := s.assigned.Set(assigned); err != nil {
		return nil, fmt.Errorf("variants: provide token %q: %w", token, err)
	}
	return assigned.Clone(), nil
}

// Provide publishes an already decoded assignment.
func Provide(ctx context.Context, assigned Assignment) error {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return ErrNoScope
	}
	if err := s.assigned.Set(assigned.Clone()); err != nil {
		return fmt.Errorf("variants: provide assignment: %w", err)
	}
	return nil
}

// Assigned waits for the request assignment to be provided.
func Assigned(ctx context.Context) (Assignment, error) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	assigned, err := s.assigned.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("variants: read assignment: %w", err)
	}
	return assigned.Clone(), nil
}

// PeekAssigned returns the request assignment without waiting.
func PeekAssigned(ctx context.Context) (Assignment, bool) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, false
	}
	assigned, ok := s.assigned.Peek()
	if !ok {
		return nil, false
	}
	return assigned.Clone(), true
}

// Value returns the value assigned to d for the current request.
func (d *Descriptor) Value(ctx context.Context) (string, error) {
	return AssignedValue(ctx, d.id)
}

// AssignedValue returns the value assigned to id for the current request.
func AssignedValue(ctx context.Context, id string) (string, error) {
	assigned, err := Assigned(ctx)
	if err != nil {
		return "", err
	}
	value, ok := assigned[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotAssigned, id)
	}
	return value, nil
}

// TemplateFuncs exposes the request assignment to html/template and
// text/template. "variant" returns one value, "variants" the whole map.
func TemplateFuncs(ctx context.Context) map[string]any {
	return map[string]any{
		"variant": func(id string) (string, error) {
			return AssignedValue(ctx, id)
		},
		"variants": func() (Assignment, error) {
			return Assigned(ctx)
		},
	}
}
