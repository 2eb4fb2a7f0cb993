package progress_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"sage/internal/progress"
)

func TestPublishAssignsSequence(t *testing.T) {
	r := progress.NewReporter(10)
	first := r.Publish(progress.Event{ItemID: 1, Stage: "validating"})
	second := r.Publish(progress.Event{ItemID: 1, Stage: "fast_path"})
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("unexpected sequences %d, %d", first.Sequence, second.Sequence)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	r := progress.NewReporter(4)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			r.Publish(progress.Event{ItemID: 1, Overall: float64(i % 100)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked")
	}
	events, next := r.Tail(0)
	if len(events) != 4 {
		t.Fatalf("expected ring buffer of 4, got %d", len(events))
	}
	if next != 10000 || events[3].Sequence != 10000 {
		t.Fatalf("unexpected tail next=%d last=%d", next, events[3].Sequence)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	r := progress.NewReporter(100)
	sub := r.Subscribe(0, 2)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		r.Publish(progress.Event{ItemID: 7, Overall: float64(i * 10)})
	}
	got := []float64{(<-sub.C).Overall, (<-sub.C).Overall}
	if got[0] != 40 || got[1] != 50 {
		t.Fatalf("expected newest events retained, got %v", got)
	}
	if sub.Dropped() != 3 {
		t.Fatalf("expected 3 dropped, got %d", sub.Dropped())
	}
}

func TestItemSubscriptionFiltersAndClosesOnTerminal(t *testing.T) {
	r := progress.NewReporter(100)
	sub := r.Subscribe(2, 10)

	r.Publish(progress.Event{ItemID: 1, Stage: "validating"})
	r.Publish(progress.Event{ItemID: 2, Stage: "validating"})
	r.Publish(progress.Event{ItemID: 2, Status: "succeeded", Overall: 100, Terminal: true})
	r.Publish(progress.Event{ItemID: 2, Stage: "late"})

	var got []progress.Event
	for evt := range sub.C {
		got = append(got, evt)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for item 2, got %d", len(got))
	}
	if !got[1].Terminal || got[1].Overall != 100 {
		t.Fatalf("expected terminal event last, got %+v", got[1])
	}
}

func TestCloseReporterClosesSubscribers(t *testing.T) {
	r := progress.NewReporter(10)
	sub := r.Subscribe(0, 1)
	r.Close()
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel")
	}
	late := r.Subscribe(0, 1)
	if _, ok := <-late.C; ok {
		t.Fatal("subscribing after close should yield a closed channel")
	}
	sub.Close()
}

func TestFetchWaitsForEvents(t *testing.T) {
	r := progress.NewReporter(10)
	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Publish(progress.Event{ItemID: 3, Stage: "storing"})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, next, err := r.Fetch(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 || next != 1 {
		t.Fatalf("unexpected fetch result %d events next=%d", len(events), next)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, _, err := r.Fetch(ctx2, next, 10, true); err == nil {
		t.Fatal("expected context error when no new events arrive")
	}
}

type recordingSink struct{ events []progress.Event }

func (s *recordingSink) Append(evt progress.Event) { s.events = append(s.events, evt) }

func TestSinksReceiveEvents(t *testing.T) {
	r := progress.NewReporter(10)
	sink := &recordingSink{}
	r.AddSink(sink)
	r.Publish(progress.Event{ItemID: 1})
	if len(sink.events) != 1 || sink.events[0].Sequence != 1 {
		t.Fatalf("unexpected sink events %+v", sink.events)
	}
}

func TestLogSinkSamplesProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := progress.NewLogSink(logger, 25)

	for _, pct := range []float64{1, 2, 3, 30, 31} {
		sink.Append(progress.Event{ItemID: 1, Stage: "fast_path", Status: "active", Overall: pct})
	}
	sink.Append(progress.Event{ItemID: 1, Status: "failed", Terminal: true, ErrorKind: "network", Message: "boom"})

	out := buf.String()
	if got := strings.Count(out, "item progress"); got != 2 {
		t.Fatalf("expected 2 sampled progress lines, got %d\n%s", got, out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "error_kind=network") {
		t.Fatalf("expected warn terminal line with error kind, got\n%s", out)
	}
}
