package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
		// Timer fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("timer did not fire")
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		// Ticker fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_NowAndSet(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)
	if !clock.Now().Equal(fixedTime) {
		t.Errorf("got %v, want %v", clock.Now(), fixedTime)
	}

	later := fixedTime.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("after Set: got %v, want %v", clock.Now(), later)
	}
}

func TestMockClock_TimerFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	timer := clock.NewTimer(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case <-timer.C():
		// fired at the deadline
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestMockClock_TimerStop(t *testing.T) {
	clock := NewMockClock(time.Time{})
	timer := clock.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() on active timer should report true")
	}
	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Error("stopped timer fired")
	default:
	}
	if timer.Stop() {
		t.Error("Stop() on stopped timer should report false")
	}
}

func TestMockClock_TimerResetRearms(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	timer := clock.NewTimer(time.Second)

	clock.Advance(900 * time.Millisecond)
	// Re-arm just before expiry: the deadline moves a full second out from
	// the mocked present, so the original deadline must not fire.
	timer.Reset(time.Second)
	clock.Advance(500 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("reset timer fired at the original deadline")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case <-timer.C():
	default:
		t.Fatal("reset timer did not fire at the new deadline")
	}
}

func TestMockClock_TickerFiresRepeatedly(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		select {
		case <-ticker.C():
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestMockClock_TickerStop(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
}

func TestMockClock_After(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	ch := clock.After(time.Minute)
	clock.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Error("After channel did not receive")
	}
}

func TestMockClock_Since(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
}
