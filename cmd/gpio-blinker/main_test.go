package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/gpio-blinker/internal/gpio"
	"github.com/sweeney/gpio-blinker/internal/logic"
	"github.com/sweeney/gpio-blinker/internal/mqtt"
	"github.com/sweeney/gpio-blinker/internal/status"
)

const (
	pinA = gpio.DefaultPinA
	pinB = gpio.DefaultPinB
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func openFake(t *testing.T) *gpio.FakeDriver {
	t.Helper()
	f := gpio.NewFakeDriver()
	if _, err := f.Opener()([]int{pinA, pinB}); err != nil {
		t.Fatalf("open fake: %v", err)
	}
	return f
}

type loopHarness struct {
	driver  *gpio.FakeDriver
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	out     bytes.Buffer
}

func newHarness(t *testing.T) *loopHarness {
	t.Helper()
	return &loopHarness{
		driver:  openFake(t),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{PinA: pinA, PinB: pinB}),
	}
}

// run drives runLoop through nTicks pauses, then delivers signal (if non-nil),
// and returns runLoop's result.
func (h *loopHarness) run(t *testing.T, maxCycles, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1500*time.Millisecond)
	seq := logic.NewSequencer(pinA, pinB)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(h.driver, h.pub, h.pub, h.tracker, seq, maxCycles, clock, tick, sig, &h.out)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	if signal != nil {
		sig <- signal
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

func TestRunLoopWriteOrder(t *testing.T) {
	h := newHarness(t)

	// 7 pauses elapse, the 8th is interrupted: two full cycles of writes.
	if err := h.run(t, 0, 7, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.driver.Writes) != 8 {
		t.Fatalf("expected 8 writes, got %d", len(h.driver.Writes))
	}
	table := logic.Cycle(pinA, pinB)
	for i, w := range h.driver.Writes {
		want := table[i%logic.PhasesPerCycle]
		if w.Pin != want.Pin || w.High != want.Level.High() {
			t.Errorf("write %d: got pin %d high=%v, want pin %d high=%v", i, w.Pin, w.High, want.Pin, want.Level.High())
		}
	}

	for _, pin := range []int{pinA, pinB} {
		if got := len(h.driver.WritesFor(pin)); got != 4 {
			t.Errorf("pin %d: expected 4 writes over two cycles, got %d", pin, got)
		}
	}
}

func TestRunLoopPublishesEachWrite(t *testing.T) {
	h := newHarness(t)

	if err := h.run(t, 0, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Events) != 6 {
		t.Fatalf("expected 6 write events, got %d", len(h.pub.Events))
	}
	wantCycles := []int{1, 1, 1, 1, 2, 2}
	wantPhases := []int{1, 2, 3, 4, 1, 2}
	for i, ev := range h.pub.Events {
		if ev.Cycle != wantCycles[i] || ev.Phase != wantPhases[i] {
			t.Errorf("event %d: got cycle %d phase %d, want cycle %d phase %d", i, ev.Cycle, ev.Phase, wantCycles[i], wantPhases[i])
		}
		if i > 0 {
			if d := ev.Timestamp.Sub(h.pub.Events[i-1].Timestamp); d != 1500*time.Millisecond {
				t.Errorf("event %d: dwell %v, want 1.5s", i, d)
			}
		}
	}
}

func TestRunLoopInterruptDuringFirstPause(t *testing.T) {
	h := newHarness(t)

	if err := h.run(t, 0, 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.driver.Writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(h.driver.Writes))
	}
	if w := h.driver.Writes[0]; w.Pin != pinA || !w.High {
		t.Errorf("first write: got %+v, want pin %d high", w, pinA)
	}
}

func TestRunLoopShutdownEvent(t *testing.T) {
	tests := []struct {
		signal os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			h := newHarness(t)
			if err := h.run(t, 0, 2, tt.signal); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if len(h.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
			}
			se := h.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tt.reason {
				t.Errorf("expected reason %s, got %q", tt.reason, se.Reason)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}
			if !strings.Contains(string(se.RawPayload), `"writes":3`) {
				t.Errorf("shutdown payload should carry status snapshot, got %s", se.RawPayload)
			}
			if !strings.Contains(h.out.String(), shutdownBanner) {
				t.Errorf("expected shutdown banner, got %q", h.out.String())
			}
		})
	}
}

func TestRunLoopStopsAfterCycles(t *testing.T) {
	h := newHarness(t)

	// Two cycles need eight pauses; the loop exits on its own afterwards.
	if err := h.run(t, 2, 8, nil); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.driver.Writes) != 8 {
		t.Errorf("expected 8 writes, got %d", len(h.driver.Writes))
	}
	if names := h.pub.SystemEventNames(); len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Fatalf("expected only SHUTDOWN, got %v", names)
	}
	if h.pub.SystemEvents[0].Reason != "CYCLES" {
		t.Errorf("expected reason CYCLES, got %q", h.pub.SystemEvents[0].Reason)
	}
	if c := h.tracker.Snapshot().Counts; c.Cycles != 2 || c.Writes != 8 {
		t.Errorf("tracker counts: got %+v", c)
	}
}

func TestRunLoopWriteErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.driver.SetError = errors.New("line released")

	err := h.run(t, 0, 0, nil)
	if err == nil {
		t.Fatal("expected error from failed write")
	}
	if !strings.Contains(err.Error(), "phase 1") {
		t.Errorf("error should name the phase, got %v", err)
	}

	if len(h.pub.Events) != 0 {
		t.Errorf("expected no write events, got %d", len(h.pub.Events))
	}
	if len(h.pub.SystemEvents) != 1 || h.pub.SystemEvents[0].Reason != "ERROR" {
		t.Errorf("expected SHUTDOWN with reason ERROR, got %+v", h.pub.SystemEvents)
	}
	if strings.Contains(h.out.String(), shutdownBanner) {
		t.Error("shutdown banner is for interrupt-driven shutdown only")
	}
}

func TestRunLoopPublishErrorContinues(t *testing.T) {
	h := newHarness(t)
	h.pub.PublishError = errors.New("broker unavailable")

	if err := h.run(t, 0, 3, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.driver.Writes) != 4 {
		t.Errorf("expected 4 writes despite publish errors, got %d", len(h.driver.Writes))
	}
	found := false
	for _, se := range h.pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	h := newHarness(t)
	h.pub.Connected = true

	if err := h.run(t, 0, 1, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := h.tracker.Snapshot()
	a, _ := snap.Pin(pinA)
	b, _ := snap.Pin(pinB)
	if a.Level != logic.LevelHigh || b.Level != logic.LevelLow {
		t.Errorf("levels after two phases: pin A %q, pin B %q", a.Level, b.Level)
	}
	if snap.Phase != 2 {
		t.Errorf("Phase: got %d, want 2", snap.Phase)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true from connection status")
	}
}

func TestRunLoopSignalBeatsPendingTick(t *testing.T) {
	// Both the tick and the signal are ready when the first pause starts;
	// select alone would pick either. Repeat to catch the random choice.
	for i := 0; i < 200; i++ {
		h := newHarness(t)
		tick := make(chan time.Time, 1)
		sig := make(chan os.Signal, 1)
		tick <- time.Time{}
		sig <- syscall.SIGINT

		seq := logic.NewSequencer(pinA, pinB)
		err := runLoop(h.driver, h.pub, h.pub, h.tracker, seq, 0, time.Now, tick, sig, &h.out)
		if err != nil {
			t.Fatalf("run %d: runLoop returned error: %v", i, err)
		}
		if len(h.driver.Writes) != 1 {
			t.Fatalf("run %d: expected 1 write with interrupt pending, got %d", i, len(h.driver.Writes))
		}
	}
}

func testConfig() config {
	return config{
		pinA:   pinA,
		pinB:   pinB,
		dwell:  10 * time.Millisecond,
		driver: "fake",
	}
}

func TestRunClaimFailure(t *testing.T) {
	f := gpio.NewFakeDriver()
	f.ClaimErrors = map[int]error{pinB: errors.New("device or resource busy")}
	var out bytes.Buffer

	err := run(testConfig(), f.Opener(), make(chan os.Signal), &out)
	if err == nil {
		t.Fatal("expected init error")
	}
	var initErr *gpio.InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *gpio.InitError, got %T: %v", err, err)
	}
	if initErr.Pin != pinB {
		t.Errorf("expected failing pin %d, got %d", pinB, initErr.Pin)
	}

	if len(f.Writes) != 0 {
		t.Errorf("main loop must not run after init failure, got %d writes", len(f.Writes))
	}
	if f.Claimed(pinA) {
		t.Error("pin A should be released after partial claim failure")
	}
	if out.Len() != 0 {
		t.Errorf("no banner expected on init failure, got %q", out.String())
	}
}

func TestRunReleasesPinsOnInterrupt(t *testing.T) {
	f := gpio.NewFakeDriver()
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT
	var out bytes.Buffer

	cfg := testConfig()
	cfg.dwell = time.Hour // the pending signal must win the first pause

	if err := run(cfg, f.Opener(), sig, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if !f.Closed {
		t.Error("expected driver to be closed")
	}
	if f.Claimed(pinA) || f.Claimed(pinB) {
		t.Error("pins should be released after shutdown")
	}
	if len(f.Writes) != 1 {
		t.Errorf("expected 1 write before interrupt, got %d", len(f.Writes))
	}

	got := out.String()
	if !strings.HasPrefix(got, startupBanner+"\n") {
		t.Errorf("expected startup banner first, got %q", got)
	}
	if !strings.Contains(got, shutdownBanner) {
		t.Errorf("expected shutdown banner, got %q", got)
	}
}

func TestRunDwellBetweenWrites(t *testing.T) {
	f := gpio.NewFakeDriver()
	cfg := testConfig()
	cfg.dwell = 20 * time.Millisecond
	cfg.cycles = 1

	if err := run(cfg, f.Opener(), make(chan os.Signal), &bytes.Buffer{}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if len(f.Writes) != logic.PhasesPerCycle {
		t.Fatalf("expected %d writes, got %d", logic.PhasesPerCycle, len(f.Writes))
	}
	// Write i happens after the i-th tick, which is never early.
	slack := 5 * time.Millisecond
	start := f.Writes[0].Time
	for i, w := range f.Writes {
		if elapsed := w.Time.Sub(start); elapsed < time.Duration(i)*cfg.dwell-slack {
			t.Errorf("write %d at +%v, expected at least +%v", i, elapsed, time.Duration(i)*cfg.dwell)
		}
	}
	if !f.Closed {
		t.Error("expected driver to be closed")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config)
		wantErr bool
	}{
		{"defaults", func(c *config) {}, false},
		{"same pins", func(c *config) { c.pinB = c.pinA }, true},
		{"negative pin", func(c *config) { c.pinA = -1 }, true},
		{"zero dwell", func(c *config) { c.dwell = 0 }, true},
		{"negative cycles", func(c *config) { c.cycles = -2 }, true},
		{"cycle limit", func(c *config) { c.cycles = 3 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.mutate(&c)
			err := c.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpener(t *testing.T) {
	for _, name := range []string{"cdev", "periph"} {
		open, err := opener(name, gpio.DefaultChip)
		if err != nil {
			t.Errorf("opener(%q): unexpected error: %v", name, err)
		}
		if open == nil {
			t.Errorf("opener(%q): nil opener", name)
		}
	}

	if _, err := opener("sysfs", gpio.DefaultChip); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("got %q, want SIGINT", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("got %q, want SIGTERM", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("got %q, want UNKNOWN", got)
	}
}
