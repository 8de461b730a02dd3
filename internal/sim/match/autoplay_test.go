package match

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"wumpusworld/internal/sim/board"
)

func TestAutoplay_FiresAfterIdle(t *testing.T) {
	f := newFixture(t, 5, board.Pos(2, 2), board.Pos(4, 4), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan TurnResult, 4)
	go func() { _ = f.m.RunAutoplay(ctx, 20*time.Millisecond, func(r TurnResult) { got <- r }) }()

	select {
	case r := <-got:
		if !r.Auto || r.Action != Move || r.Turn != 1 {
			t.Fatalf("auto turn=%+v", r)
		}
		if r.Log == "" {
			t.Fatalf("auto turn without narration")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("autoplay never fired")
	}
}

func TestAutoplay_ManualTurnsResetTheWait(t *testing.T) {
	f := newFixture(t, 5, board.Pos(2, 2), board.Pos(4, 4), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var autos atomic.Int32
	go func() {
		_ = f.m.RunAutoplay(ctx, 300*time.Millisecond, func(TurnResult) { autos.Add(1) })
	}()

	dirs := []board.Direction{board.East, board.West}
	for i := 0; i < 12; i++ {
		f.m.ResolveTurn(Move, dirs[i%2])
		time.Sleep(40 * time.Millisecond)
	}
	if n := autos.Load(); n != 0 {
		t.Fatalf("autoplay fired %d times despite steady manual turns", n)
	}
	if f.m.Turn() != 12 {
		t.Fatalf("turn=%d want 12", f.m.Turn())
	}
}

func TestAutoplay_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 5, board.Pos(2, 2), board.Pos(4, 4), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.m.RunAutoplay(ctx, time.Hour, nil) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("autoplay did not stop")
	}
}

func TestAutoplay_StopsWhenMatchEnds(t *testing.T) {
	f := newFixture(t, 5, board.Pos(0, 0), board.Pos(0, 1), nil)
	done := make(chan error, 1)
	go func() { done <- f.m.RunAutoplay(context.Background(), time.Hour, nil) }()

	f.m.ResolveTurn(Shoot, board.East)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("err=%v want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("autoplay kept running after the match ended")
	}
}

func TestAutoTurn_YieldsToRacingManualTurn(t *testing.T) {
	f := newFixture(t, 5, board.Pos(2, 2), board.Pos(4, 4), nil)
	armed := f.m.manualSeq.Load()
	f.m.ResolveTurn(Move, board.East)
	if _, ok := f.m.autoTurn(armed); ok {
		t.Fatalf("auto turn ran after a manual turn cancelled it")
	}
	if f.m.Turn() != 1 {
		t.Fatalf("turn=%d want 1", f.m.Turn())
	}
	if _, ok := f.m.autoTurn(f.m.manualSeq.Load()); !ok {
		t.Fatalf("freshly armed auto turn should run")
	}
}
