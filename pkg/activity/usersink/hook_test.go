package usersink_test

import (
	"context"
	"testing"
	"time"

	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/goliatone/go-variants/pkg/activity"
	"github.com/goliatone/go-variants/pkg/activity/usersink"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsAssignmentEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	tenantID := uuid.New()

	event := activity.BuildVariantAssignedEvent(activity.AssignmentEventInput{
		UserID:     userID.String(),
		TenantID:   tenantID.String(),
		Channel:    "variants",
		VariantID:  "checkout-button",
		Value:      "green",
		Provider:   "experiments",
		OccurredAt: now,
	})

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.UserID != userID || record.TenantID != tenantID {
		t.Fatalf("unexpected identities: %+v", record)
	}
	if record.ActorID != uuid.Nil {
		t.Fatalf("expected nil actor, got %s", record.ActorID)
	}
	if record.Verb != activity.VerbVariantAssigned || record.ObjectType != "variant" || record.ObjectID != "checkout-button" {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "variants" {
		t.Fatalf("expected channel variants, got %q", record.Channel)
	}
	if !record.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["value"] != "green" || record.Data["provider"] != "experiments" {
		t.Fatalf("expected metadata passthrough, got %+v", record.Data)
	}
	if _, ok := record.Data["visitor_id"]; ok {
		t.Fatalf("uuid visitors should not be copied into data")
	}
}

func TestHookNotifyKeepsNonUUIDVisitor(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbVariantAssigned,
		UserID:     "visitor-42",
		ObjectType: "variant",
		ObjectID:   "a",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	record := sink.records[0]
	if record.UserID != uuid.Nil {
		t.Fatalf("expected nil user uuid, got %s", record.UserID)
	}
	if record.Data["visitor_id"] != "visitor-42" {
		t.Fatalf("expected visitor id in data, got %+v", record.Data)
	}
	if record.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}

func TestHookNotifySkipsIncompleteEvents(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{Verb: activity.VerbVariantAssigned})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for incomplete event, got %d", len(sink.records))
	}
}

func TestHookWithoutSinkIsNoop(t *testing.T) {
	if err := (usersink.Hook{}).Notify(context.Background(), activity.Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
