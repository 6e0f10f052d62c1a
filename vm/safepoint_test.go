package vm

import (
	"testing"
	"time"
)

func TestSafepointPollNoopWhenNotSuspended(t *testing.T) {
	threads := NewThreadRegistry()
	sc := NewSafepointCoordinator(threads)
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	done := make(chan struct{})
	go func() {
		sc.Poll(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Poll should return immediately when no stop-the-world is in progress")
	}
}

func TestStopTheWorldTreatsDeadThreadsAsQuiescent(t *testing.T) {
	threads := NewThreadRegistry()
	sc := NewSafepointCoordinator(threads)

	live := threads.Attach()
	defer threads.Detach(live)
	dead := threads.Attach()
	dead.alive.Store(false)
	defer threads.Detach(dead)

	live.suspended.Store(true) // simulate live already having polled

	if !sc.StopTheWorld(time.Second) {
		t.Fatalf("expected StopTheWorld to succeed once every thread is quiescent")
	}
	sc.ResumeTheWorld()
}

func TestStopTheWorldTimesOutOnStuckThread(t *testing.T) {
	threads := NewThreadRegistry()
	sc := NewSafepointCoordinator(threads)

	stuck := threads.Attach()
	defer threads.Detach(stuck)

	if sc.StopTheWorld(20 * time.Millisecond) {
		t.Fatalf("expected StopTheWorld to time out against a thread that never reaches a safepoint")
	}
	sc.ResumeTheWorld()
}

func TestBeginShutdownRaisesExitSentinelAtNextPoll(t *testing.T) {
	threads := NewThreadRegistry()
	sc := NewSafepointCoordinator(threads)
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	sc.BeginShutdown()
	if !sc.Exiting() {
		t.Fatalf("expected Exiting to report true after BeginShutdown")
	}

	defer func() {
		r := recover()
		if !RecoverExit(r) {
			t.Fatalf("expected Poll to raise the Exit sentinel once the VM is exiting, got %#v", r)
		}
	}()
	sc.Poll(ctx)
}

func TestBeginShutdownWakesThreadParkedInPoll(t *testing.T) {
	threads := NewThreadRegistry()
	sc := NewSafepointCoordinator(threads)
	ctx := threads.Attach()
	defer threads.Detach(ctx)
	ctx.suspended.Store(true) // simulate ctx already being at a safepoint

	if !sc.StopTheWorld(time.Second) {
		t.Fatalf("expected StopTheWorld to succeed")
	}

	unwound := make(chan struct{})
	go func() {
		defer func() {
			if RecoverExit(recover()) {
				close(unwound)
			}
		}()
		sc.Poll(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	sc.BeginShutdown()

	select {
	case <-unwound:
	case <-time.After(time.Second):
		t.Fatalf("expected BeginShutdown to wake the parked thread and raise the Exit sentinel")
	}
}

func TestPollBlocksUntilResume(t *testing.T) {
	threads := NewThreadRegistry()
	sc := NewSafepointCoordinator(threads)
	ctx := threads.Attach()
	defer threads.Detach(ctx)
	ctx.suspended.Store(true)

	go func() {
		if !sc.StopTheWorld(time.Second) {
			t.Errorf("stop-the-world should succeed")
		}
	}()
	time.Sleep(10 * time.Millisecond)

	polled := make(chan struct{})
	go func() {
		sc.Poll(ctx)
		close(polled)
	}()

	select {
	case <-polled:
		t.Fatalf("Poll should block while suspended")
	case <-time.After(50 * time.Millisecond):
	}

	sc.ResumeTheWorld()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatalf("Poll should unblock after ResumeTheWorld")
	}
}
