package health

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  100 * time.Millisecond,
	}
}

func TestTracker_OpensAfterFailureThreshold(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)

	for i := 0; i < 4; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
		if got := tracker.GetState("p1"); got != StateClosed {
			t.Fatalf("state after %d failures = %v, want closed", i+1, got)
		}
	}

	tracker.RecordFailure("p1", errors.New("boom"))
	if got := tracker.GetState("p1"); got != StateOpen {
		t.Fatalf("state after 5 failures = %v, want open", got)
	}
}

func TestTracker_SuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)

	for i := 0; i < 4; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}
	tracker.RecordSuccess("p1")
	for i := 0; i < 4; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}

	if got := tracker.GetState("p1"); got != StateClosed {
		t.Errorf("state = %v after interleaved success, want closed", got)
	}
}

func TestTracker_OpenRejectsUntilTimeout(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)
	for i := 0; i < 5; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}

	if _, err := tracker.Allow("p1"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() while open error = %v, want ErrCircuitOpen", err)
	}

	time.Sleep(120 * time.Millisecond)

	if got := tracker.GetState("p1"); got != StateHalfOpen {
		t.Fatalf("state after recovery timeout = %v, want half-open", got)
	}
}

func TestTracker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)
	for i := 0; i < 5; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}
	time.Sleep(120 * time.Millisecond)

	tracker.RecordSuccess("p1")
	if got := tracker.GetState("p1"); got != StateHalfOpen {
		t.Fatalf("state after 1 trial success = %v, want half-open", got)
	}

	tracker.RecordSuccess("p1")
	if got := tracker.GetState("p1"); got != StateClosed {
		t.Fatalf("state after 2 trial successes = %v, want closed", got)
	}
}

func TestTracker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)
	for i := 0; i < 5; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}
	time.Sleep(120 * time.Millisecond)

	tracker.RecordSuccess("p1")
	tracker.RecordFailure("p1", errors.New("still broken"))

	if got := tracker.GetState("p1"); got != StateOpen {
		t.Fatalf("state after half-open failure = %v, want open", got)
	}
}

func TestTracker_UnknownResourceIsClosed(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)
	if got := tracker.GetState("never-seen"); got != StateClosed {
		t.Errorf("GetState(unknown) = %v, want closed", got)
	}
	if !tracker.IsHealthyFunc("never-seen")() {
		t.Error("IsHealthyFunc(unknown)() = false, want true")
	}
}

func TestTracker_Reset(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)
	for i := 0; i < 5; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}
	if got := tracker.GetState("p1"); got != StateOpen {
		t.Fatalf("state = %v, want open before reset", got)
	}

	tracker.Reset("p1")
	if got := tracker.GetState("p1"); got != StateClosed {
		t.Errorf("state after reset = %v, want closed", got)
	}
	if done, err := tracker.Allow("p1"); err != nil {
		t.Errorf("Allow() after reset error = %v", err)
	} else {
		done(nil)
	}

	tracker.Reset("never-seen") // no-op
}

func TestTracker_StateChangeHook(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	type transition struct {
		resource string
		from, to State
	}
	var seen []transition

	tracker := NewTracker(testConfig(), nil, func(resource string, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, transition{resource, from, to})
	})

	for i := 0; i < 5; i++ {
		tracker.RecordFailure("p1", errors.New("boom"))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(seen))
	}
	if seen[0].resource != "p1" || seen[0].from != StateClosed || seen[0].to != StateOpen {
		t.Errorf("hook observed %+v, want p1 closed->open", seen[0])
	}
}

func TestTracker_IndependentResources(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)
	for i := 0; i < 5; i++ {
		tracker.RecordFailure("broken", errors.New("boom"))
	}
	tracker.RecordSuccess("fine")

	if got := tracker.GetState("broken"); got != StateOpen {
		t.Errorf("broken state = %v, want open", got)
	}
	if got := tracker.GetState("fine"); got != StateClosed {
		t.Errorf("fine state = %v, want closed", got)
	}

	states := tracker.AllStates()
	if len(states) != 2 {
		t.Errorf("AllStates() has %d entries, want 2", len(states))
	}
}

func TestTracker_ConcurrentCreate(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(testConfig(), nil, nil)

	var wg sync.WaitGroup
	breakers := make([]*CircuitBreaker, 32)
	for i := range breakers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = tracker.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(breakers); i++ {
		if breakers[i] != breakers[0] {
			t.Fatal("concurrent GetOrCreate returned distinct breakers for one resource")
		}
	}
}
