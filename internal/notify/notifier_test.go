package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"opportunity.created"}, discardLogger())

	ctx := context.Background()
	if err := n.Notify(ctx, "opportunity.created", "new opportunity", "6.93%"); err != nil {
		t.Fatalf("Notify allowed event: %v", err)
	}
	if err := n.Notify(ctx, "opportunity.expired", "expired", "gone"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}

	if len(s.titles) != 1 || s.titles[0] != "new opportunity" {
		t.Errorf("sender received %v, want only the allowed event", s.titles)
	}
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	ctx := context.Background()
	for _, ev := range []string{"opportunity.created", "opportunity.superseded", "anything"} {
		if err := n.Notify(ctx, ev, ev, "body"); err != nil {
			t.Fatalf("Notify(%q): %v", ev, err)
		}
	}
	if len(s.titles) != 3 {
		t.Errorf("sender received %d notifications, want 3", len(s.titles))
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"opportunity.created"}, discardLogger())

	if err := n.NotifyAll(context.Background(), "shutdown", "engine stopping"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(s.titles) != 1 {
		t.Errorf("sender received %d notifications, want 1", len(s.titles))
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	failing := &fakeSender{name: "telegram", err: errors.New("rate limited")}
	working := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{failing, working}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "title", "message")
	if err == nil {
		t.Fatal("want combined error when a sender fails")
	}
	if !strings.Contains(err.Error(), "telegram") {
		t.Errorf("error %q does not name the failed sender", err)
	}
	if len(working.titles) != 1 {
		t.Errorf("working sender received %d notifications, want 1", len(working.titles))
	}
}

func TestNotifierNoSendersIsNoOp(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if err := n.NotifyAll(context.Background(), "title", "message"); err != nil {
		t.Fatalf("NotifyAll with no senders: %v", err)
	}
}
