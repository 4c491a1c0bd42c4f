package activity

import (
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	VerbVariantAssigned     = "variant.assigned"
	VerbVariantFallback     = "variant.fallback"
	VerbAssignmentPersisted = "variants.persisted"

	objectTypeVariant    = "variant"
	objectTypeAssignment = "assignment"
	anonymousObjectID    = "anonymous"
)

// AssignmentEventInput describes a single variant receiving a value.
type AssignmentEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	VariantID  string
	Value      string
	Provider   string
	Path       string
	Metadata   map[string]any
	OccurredAt time.Time
}

// PersistEventInput describes an assignment map written to a store.
type PersistEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	Store      string
	Assignment map[string]string
	Added      map[string]string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildVariantAssignedEvent reports a value produced by a provider.
func BuildVariantAssignedEvent(input AssignmentEventInput) Event {
	return buildVariantEvent(VerbVariantAssigned, input)
}

// BuildVariantFallbackEvent reports a fallback used after a provider failed.
func BuildVariantFallbackEvent(input AssignmentEventInput) Event {
	return buildVariantEvent(VerbVariantFallback, input)
}

// BuildAssignmentPersistedEvent reports an assignment map saved for a visitor.
func BuildAssignmentPersistedEvent(input PersistEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Store != "" {
		metadata = ensureMetadata(metadata)
		metadata["store"] = input.Store
	}
	if len(input.Assignment) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["assignment"] = maps.Clone(input.Assignment)
	}
	if len(input.Added) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["added"] = slices.Sorted(maps.Keys(input.Added))
	}

	objectID := strings.TrimSpace(input.UserID)
	if objectID == "" {
		objectID = anonymousObjectID
	}
	return Event{
		Verb:       VerbAssignmentPersisted,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectTypeAssignment,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildVariantEvent(verb string, input AssignmentEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Value != "" {
		metadata = ensureMetadata(metadata)
		metadata["value"] = input.Value
	}
	if input.Provider != "" {
		metadata = ensureMetadata(metadata)
		metadata["provider"] = input.Provider
	}
	if input.Path != "" {
		metadata = ensureMetadata(metadata)
		metadata["path"] = input.Path
	}
	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectTypeVariant,
		ObjectID:   strings.TrimSpace(input.VariantID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
