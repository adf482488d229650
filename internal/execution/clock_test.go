package execution

import (
	"testing"
)

func TestVirtualClock_FiresInTimestampOrder(t *testing.T) {
	clock := NewVirtualClock(0)

	var fired []int64
	clock.SetAlarm(30, func(now int64) { fired = append(fired, now) })
	clock.SetAlarm(10, func(now int64) { fired = append(fired, now) })
	clock.SetAlarm(20, func(now int64) { fired = append(fired, now) })

	clock.AdvanceTo(25)

	if len(fired) != 2 {
		t.Fatalf("Expected 2 alarms fired, got %d", len(fired))
	}
	if fired[0] != 10 || fired[1] != 20 {
		t.Errorf("Expected firing order [10 20], got %v", fired)
	}
	if clock.NowNs() != 25 {
		t.Errorf("Expected now=25, got %d", clock.NowNs())
	}

	clock.AdvanceTo(100)
	if len(fired) != 3 || fired[2] != 30 {
		t.Errorf("Expected third alarm at 30, got %v", fired)
	}
}

func TestVirtualClock_SameTimestampFiresInInsertionOrder(t *testing.T) {
	clock := NewVirtualClock(0)

	var order []string
	clock.SetAlarm(10, func(int64) { order = append(order, "first") })
	clock.SetAlarm(10, func(int64) { order = append(order, "second") })
	clock.SetAlarm(10, func(int64) { order = append(order, "third") })

	clock.AdvanceTo(10)

	if len(order) != 3 {
		t.Fatalf("Expected 3 alarms fired, got %d", len(order))
	}
	if order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("Expected insertion order, got %v", order)
	}
}

func TestVirtualClock_CancelPreventsFiring(t *testing.T) {
	clock := NewVirtualClock(0)

	fired := false
	cancel := clock.SetAlarm(10, func(int64) { fired = true })

	if clock.PendingAlarms() != 1 {
		t.Errorf("Expected 1 pending alarm, got %d", clock.PendingAlarms())
	}

	cancel()
	if clock.PendingAlarms() != 0 {
		t.Errorf("Expected 0 pending alarms after cancel, got %d", clock.PendingAlarms())
	}

	clock.AdvanceTo(100)
	if fired {
		t.Error("Cancelled alarm fired")
	}
}

func TestVirtualClock_CallbackMaySchedule(t *testing.T) {
	clock := NewVirtualClock(0)

	var fired []int64
	clock.SetAlarm(10, func(now int64) {
		fired = append(fired, now)
		clock.SetAlarm(20, func(now int64) { fired = append(fired, now) })
	})

	clock.AdvanceTo(30)

	if len(fired) != 2 {
		t.Fatalf("Expected chained alarm to fire, got %v", fired)
	}
	if fired[0] != 10 || fired[1] != 20 {
		t.Errorf("Expected [10 20], got %v", fired)
	}
}

func TestVirtualClock_AdvanceNeverMovesBackward(t *testing.T) {
	clock := NewVirtualClock(50)

	clock.AdvanceTo(10)
	if clock.NowNs() != 50 {
		t.Errorf("Expected now to stay at 50, got %d", clock.NowNs())
	}
}
