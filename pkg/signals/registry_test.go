package signals

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/docsentry/docsentry/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRegistrySendRunsHandlersInOrder(t *testing.T) {
	registry := NewRegistry(nil, testLogger())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		registry.Connect(EventCollectionSaved, name, func(ctx context.Context, event Event) error {
			order = append(order, name)
			return nil
		})
	}

	err := registry.Send(context.Background(), Event{Type: EventCollectionSaved, CollectionID: 1})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %d handler runs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("handler %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRegistrySendStopsAtFirstError(t *testing.T) {
	registry := NewRegistry(nil, testLogger())

	handlerErr := errors.New("acl write failed")
	var thirdRan bool

	registry.Connect(EventCollectionSaved, "ok", func(ctx context.Context, event Event) error {
		return nil
	})
	registry.Connect(EventCollectionSaved, "failing", func(ctx context.Context, event Event) error {
		return handlerErr
	})
	registry.Connect(EventCollectionSaved, "never", func(ctx context.Context, event Event) error {
		thirdRan = true
		return nil
	})

	err := registry.Send(context.Background(), Event{Type: EventCollectionSaved, CollectionID: 1})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("Send() error = %v, want wrapped %v", err, handlerErr)
	}
	if thirdRan {
		t.Error("handler after the failing one ran; dispatch should have aborted")
	}
}

func TestRegistrySendIgnoresOtherEventTypes(t *testing.T) {
	registry := NewRegistry(nil, testLogger())

	var ran bool
	registry.Connect(EventDocumentSaved, "doc-only", func(ctx context.Context, event Event) error {
		ran = true
		return nil
	})

	err := registry.Send(context.Background(), Event{Type: EventCollectionSaved, CollectionID: 1})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}
	if ran {
		t.Error("document handler ran for a collection event")
	}
}

func TestRegistrySendNoHandlers(t *testing.T) {
	registry := NewRegistry(nil, testLogger())

	err := registry.Send(context.Background(), Event{Type: EventDocumentSaved, DocumentID: 7})
	if err != nil {
		t.Fatalf("Send() with no handlers error = %v, want nil", err)
	}
}
