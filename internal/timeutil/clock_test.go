package timeutil

import (
	"testing"
	"time"
)

func TestMockClockNowAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	later := start.Add(5 * time.Minute)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClockSince(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(90 * time.Second)

	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since(start) = %v, want 90s", got)
	}
}

func TestMockTimerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(10 * time.Second)

	c.Advance(5 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestMockTimerStop(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() on an active timer should report true")
	}
	c.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
	if timer.Stop() {
		t.Error("Stop() on a stopped timer should report false")
	}
}

func TestMockTickerFiresRepeatedly(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C():
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestAfterDeliversOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ch := c.After(3 * time.Second)

	c.Advance(3 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After channel did not deliver")
	}
}

func TestWaiters(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	if got := c.Waiters(); got != 0 {
		t.Errorf("Waiters() = %d on a fresh clock, want 0", got)
	}

	timer := c.NewTimer(time.Second)
	ticker := c.NewTicker(time.Second)
	if got := c.Waiters(); got != 2 {
		t.Errorf("Waiters() = %d, want 2", got)
	}

	c.Advance(time.Second) // fires the timer; the ticker keeps waiting
	if got := c.Waiters(); got != 1 {
		t.Errorf("Waiters() after advance = %d, want 1", got)
	}

	timer.Stop()
	ticker.Stop()
	if got := c.Waiters(); got != 0 {
		t.Errorf("Waiters() after stop = %d, want 0", got)
	}
}

func TestRealClockBasics(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	if now.Before(before) {
		t.Errorf("RealClock.Now() = %v is before %v", now, before)
	}
	if d := c.Since(before); d < 0 {
		t.Errorf("RealClock.Since = %v, want >= 0", d)
	}
}
