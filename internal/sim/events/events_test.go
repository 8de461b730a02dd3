package events

import "testing"

func TestBus_OrderAndCancel(t *testing.T) {
	b := NewBus()
	var got []string
	cancelA := b.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Type)) })
	b.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Type)) })

	b.Emit(Event{Type: Moved})
	cancelA()
	cancelA()
	b.Emit(Event{Type: Eliminated})

	want := []string{"a:moved", "b:moved", "b:eliminated"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestBus_NilEmitIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(Event{Type: Moved})
}

func TestBus_ChanDropsOldest(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Chan(2)
	defer cancel()
	for i := 0; i < 3; i++ {
		b.Emit(Event{Type: ScoreChanged, New: i})
	}
	first, second := <-ch, <-ch
	if first.New != 1 || second.New != 2 {
		t.Fatalf("got %d,%d want 1,2", first.New, second.New)
	}
}

func TestRecorder_Drain(t *testing.T) {
	var r Recorder
	r.Record(Event{Type: ArrowFired})
	r.Record(Event{Type: ArrowCountChanged, Old: 1, New: 0})
	if got := r.Drain(); len(got) != 2 || got[1].Type != ArrowCountChanged {
		t.Fatalf("drain=%+v", got)
	}
	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("second drain=%+v", got)
	}
}
