package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/artpar/apiward/adapters/clock"
	"github.com/artpar/apiward/ports"
)

var _ ports.Clock = clock.Real{}
var _ ports.Sleeper = clock.Real{}
var _ ports.Clock = (*clock.Fake)(nil)
var _ ports.Sleeper = (*clock.Fake)(nil)

func TestFake_AdvanceAndSet(t *testing.T) {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFake(base)

	if !fake.Now().Equal(base) {
		t.Errorf("Now() = %v, want %v", fake.Now(), base)
	}

	fake.Advance(90 * time.Second)
	if !fake.Now().Equal(base.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", fake.Now())
	}

	fake.Set(base)
	if !fake.Now().Equal(base) {
		t.Errorf("Now() after Set = %v", fake.Now())
	}
}

func TestFake_SleepAdvances(t *testing.T) {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFake(base)

	done := fake.Sleep(context.Background(), time.Minute)

	if !done {
		t.Error("Sleep returned false without cancellation")
	}
	if !fake.Now().Equal(base.Add(time.Minute)) {
		t.Errorf("Now() = %v, want advanced by a minute", fake.Now())
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFake(base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if fake.Sleep(ctx, time.Minute) {
		t.Error("Sleep returned true on cancelled context")
	}
	if !fake.Now().Equal(base) {
		t.Error("cancelled Sleep advanced the clock")
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	done := clock.Real{}.Sleep(ctx, time.Minute)

	if done {
		t.Error("Sleep returned true on cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled Sleep blocked")
	}
}
