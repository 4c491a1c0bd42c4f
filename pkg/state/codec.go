package state

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/fxamacker/cbor/v2"
	variants "github.com/goliatone/go-variants"
)

// Codec serialises an assignment into a cookie safe string.
type Codec interface {
	Name() string
	Encode(variants.Assignment) (string, error)
	Decode(string) (variants.Assignment, error)
}

// JSONCodec stores the assignment as query-escaped JSON, readable by any
// client side code that shares the cookie.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(assigned variants.Assignment) (string, error) {
	if assigned == nil {
		assigned = variants.Assignment{}
	}
	payload, err := json.Marshal(assigned)
	if err != nil {
		return "", fmt.Errorf("state: encode json: %w", err)
	}
	return url.QueryEscape(string(payload)), nil
}

func (JSONCodec) Decode(value string) (variants.Assignment, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var assigned variants.Assignment
	if err := json.Unmarshal([]byte(raw), &assigned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if assigned == nil {
		assigned = variants.Assignment{}
	}
	return assigned, nil
}

var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// CBORCodec stores the assignment as canonical CBOR in unpadded base64url.
// It is more compact than JSON for large assignment maps.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Encode(assigned variants.Assignment) (string, error) {
	if assigned == nil {
		assigned = variants.Assignment{}
	}
	payload, err := cborEncMode.Marshal(map[string]string(assigned))
	if err != nil {
		return "", fmt.Errorf("state: encode cbor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

func (CBORCodec) Decode(value string) (variants.Assignment, error) {
	payload, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var assigned map[string]string
	if err := cbor.Unmarshal(payload, &assigned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if assigned == nil {
		assigned = map[string]string{}
	}
	return variants.Assignment(assigned), nil
}

// CodecByName returns the codec registered under name. An empty name selects
// JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("state: unknown cookie codec %q", name)
	}
}
