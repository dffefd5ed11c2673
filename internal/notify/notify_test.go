package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Message: "ignored"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatalf("nil dispatcher should report zero drops")
	}
}

func TestSyncDispatcherEmitsInline(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Kind: KindSuccess, Message: "ok"})
	if got := sink.count.Load(); got != 1 {
		t.Fatalf("expected inline delivery, got %d", got)
	}
}

func TestAsyncDispatcherDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, Async: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Kind: KindInfo})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered, got %d", got)
	}

	d.Emit(context.Background(), Event{})
	if got := sink.count.Load(); got != 10 {
		t.Fatalf("emit after close should be discarded, got %d", got)
	}
}

func TestAsyncDispatcherDropIfFull(t *testing.T) {
	gate := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, Async: true, BufferSize: 1, DropIfFull: true}, gate)

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		d.Emit(context.Background(), Event{})
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked sink")
	}

	close(gate.gate)
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{Kind: KindError, Operation: "login", Message: "Login failed"})
	sink.Emit(context.Background(), Event{Kind: KindSuccess, Operation: "logout", Message: "Signed out"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Kind != KindError || first.Operation != "login" {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{Kind: KindError, Message: "bad"})
	sink.Emit(context.Background(), Event{Kind: KindSuccess, Message: "good"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel || entries[1].Level != zap.InfoLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), Event{Message: "one"})
	select {
	case ev := <-sink.Events():
		if ev.Message != "one" {
			t.Fatalf("unexpected %+v", ev)
		}
	default:
		t.Fatalf("expected buffered event")
	}
}

func TestZeroSinksDiscard(t *testing.T) {
	var zs ZapSink
	zs.Emit(context.Background(), Event{Kind: KindError, Message: "dropped"})

	var nilZap *ZapSink
	nilZap.Emit(context.Background(), Event{Message: "dropped"})

	var cs ChannelSink
	cs.Emit(context.Background(), Event{Message: "dropped"})

	NewZapSink(nil).Emit(context.Background(), Event{Message: "dropped"})
}
