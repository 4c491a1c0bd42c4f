package variants

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDescriptor = errors.New("variants: invalid descriptor")
	ErrDuplicateVariant  = errors.New("variants: duplicate variant id")
	ErrInvalidToken      = errors.New("variants: invalid token")
	ErrNoResolver        = errors.New("variants: descriptor has no resolve function")
	ErrValueNotAllowed   = errors.New("variants: resolved value not allowed")
	ErrNotAssigned       = errors.New("variants: variant not assigned via params")
	ErrNoScope           = errors.New("variants: request scope not found in context")
	ErrMissingProvider   = errors.New("variants: missing provider")
	ErrProviderType      = errors.New("variants: provider type mismatch")
)

// ResolutionError captures the variant and provider that failed to produce a
// value alongside the originating error.
type ResolutionError struct {
	VariantID string
	Provider  string
	Err       error
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("variants: resolve %q %s: %v", e.VariantID, describeProvider(e.Provider), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeProvider(provider string) string {
	if provider == "" {
		return "provider=<none>"
	}
	return fmt.Sprintf("provider=%s", provider)
}

func wrapResolutionError(id, provider string, err error) error {
	if err == nil {
		return nil
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		if resErr.VariantID == "" {
			resErr.VariantID = id
		}
		if resErr.Provider == "" {
			resErr.Provider = provider
		}
		return resErr
	}

	return &ResolutionError{
		VariantID: id,
		Provider:  provider,
		Err:       err,
	}
}
