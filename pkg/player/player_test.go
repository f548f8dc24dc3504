package player

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/input"
	"github.com/offlinefirst/tinymacro/pkg/macro"
)

type fakeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeSleeper) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusLog) Sink(msg string) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *statusLog) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func (s *statusLog) Last() string {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func clickScenario() macro.Macro {
	return macro.New(
		macro.Event{T: 0, Data: macro.Move{X: 10, Y: 10}},
		macro.Event{T: 0.2, Data: macro.Click{X: 10, Y: 10, Button: macro.ButtonLeft, Pressed: true}},
		macro.Event{T: 0.2, Data: macro.Click{X: 10, Y: 10, Button: macro.ButtonLeft}},
	)
}

func newTestPlayer(t *testing.T, tape *input.Tape, sleeper func(context.Context, time.Duration) error) *Player {
	t.Helper()
	p, err := New(Options{Emitter: tape, Sleeper: sleeper})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	return p
}

func TestNewRequiresEmitter(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without emitter")
	}
}

func TestNormalizeSpeed(t *testing.T) {
	cases := map[float64]float64{0: 1, -2: 1, 0.5: 0.5, 3: 3}
	for in, want := range cases {
		if got := NormalizeSpeed(in); got != want {
			t.Fatalf("NormalizeSpeed(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestScheduleScalesBySpeed(t *testing.T) {
	events := []macro.Event{
		{T: 0.5, Data: macro.Move{}},
		{T: 1.5, Data: macro.Move{}},
		{T: 1.5, Data: macro.Move{}},
		{T: 3.5, Data: macro.Move{}},
	}
	got := Schedule(events, 2)
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 0, time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wait %d: got %v want %v", i, got[i], want[i])
		}
	}

	slow := Schedule(events, 0.5)
	if slow[3] != 4*time.Second {
		t.Fatalf("expected half speed to double waits, got %v", slow[3])
	}
	if def := Schedule(events, 0); def[1] != time.Second {
		t.Fatalf("expected invalid speed to fall back to 1, got %v", def[1])
	}
}

func TestScheduleNeverNegative(t *testing.T) {
	events := []macro.Event{{T: 1, Data: macro.Move{}}, {T: 0.5, Data: macro.Move{}}}
	if got := Schedule(events, 1); got[1] != 0 {
		t.Fatalf("expected clamp to zero, got %v", got[1])
	}

	saturating := []struct {
		gap   float64
		speed float64
	}{
		{1e10, 1},
		{1, 1e-12},
	}
	for _, tc := range saturating {
		events := []macro.Event{{T: 0, Data: macro.Move{}}, {T: tc.gap, Data: macro.Move{}}}
		got := Schedule(events, tc.speed)
		if got[1] != time.Duration(math.MaxInt64) {
			t.Fatalf("gap %v at speed %v: expected saturated wait, got %v", tc.gap, tc.speed, got[1])
		}
	}
}

func TestPlayCapsOversizedJitter(t *testing.T) {
	tape := input.NewTape(nil)
	var seen []int
	p, err := New(Options{
		Emitter: tape,
		Sleeper: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		IntN: func(n int) int {
			seen = append(seen, n)
			return 0
		},
	})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	m := macro.New(macro.Event{T: 0, Data: macro.Move{X: 5, Y: 5}})
	res, err := p.Play(context.Background(), m, Params{Speed: 1, JitterPixels: math.MaxInt}, nil)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Emitted != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, n := range seen {
		if n != 2*MaxJitterPixels+1 {
			t.Fatalf("expected IntN bound %d, got %d", 2*MaxJitterPixels+1, n)
		}
	}
	if call := tape.Calls()[0]; call.X != 5-MaxJitterPixels || call.Y != 5-MaxJitterPixels {
		t.Fatalf("unexpected jittered position %+v", call)
	}
}

func TestPlayEmitsScenarioInOrder(t *testing.T) {
	tape := input.NewTape(nil)
	sleeper := &fakeSleeper{}
	p := newTestPlayer(t, tape, sleeper.Sleep)
	status := &statusLog{}

	res, err := p.Play(context.Background(), clickScenario(), Params{Speed: 1}, status.Sink)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Outcome != OutcomeFinished || res.Emitted != 3 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	calls := tape.Calls()
	wantOps := []input.Op{input.OpMove, input.OpMove, input.OpPress, input.OpMove, input.OpRelease}
	if len(calls) != len(wantOps) {
		t.Fatalf("expected %d calls, got %+v", len(wantOps), calls)
	}
	for i, op := range wantOps {
		if calls[i].Op != op {
			t.Fatalf("call %d: got %s want %s", i, calls[i].Op, op)
		}
	}
	if calls[0].X != 10 || calls[0].Y != 10 || calls[2].Button != macro.ButtonLeft {
		t.Fatalf("unexpected call payloads %+v", calls)
	}

	waits := sleeper.Waits()
	if len(waits) != 1 || waits[0] != 200*time.Millisecond {
		t.Fatalf("expected one 200ms wait and none between the clicks, got %v", waits)
	}

	msgs := status.Messages()
	if msgs[0] != StatusPlaying || status.Last() != StatusFinished {
		t.Fatalf("unexpected statuses %v", msgs)
	}
	if p.Playing() {
		t.Fatalf("expected idle after playback")
	}
}

func TestPlaySpeedScaling(t *testing.T) {
	m := macro.New(
		macro.Event{T: 0, Data: macro.Move{X: 1, Y: 1}},
		macro.Event{T: 1.0, Data: macro.Move{X: 2, Y: 2}},
		macro.Event{T: 3.0, Data: macro.Move{X: 3, Y: 3}},
	)
	for _, tc := range []struct {
		speed float64
		want  []time.Duration
	}{
		{speed: 2, want: []time.Duration{500 * time.Millisecond, time.Second}},
		{speed: 0.5, want: []time.Duration{2 * time.Second, 4 * time.Second}},
		{speed: -1, want: []time.Duration{time.Second, 2 * time.Second}},
	} {
		sleeper := &fakeSleeper{}
		p := newTestPlayer(t, input.NewTape(nil), sleeper.Sleep)
		if _, err := p.Play(context.Background(), m, Params{Speed: tc.speed}, nil); err != nil {
			t.Fatalf("play: %v", err)
		}
		got := sleeper.Waits()
		if len(got) != len(tc.want) {
			t.Fatalf("speed %v: got waits %v want %v", tc.speed, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("speed %v: wait %d got %v want %v", tc.speed, i, got[i], tc.want[i])
			}
		}
	}
}

func TestPlayNothingToPlay(t *testing.T) {
	tape := input.NewTape(nil)
	p := newTestPlayer(t, tape, nil)
	status := &statusLog{}
	_, err := p.Play(context.Background(), macro.Macro{}, Params{}, status.Sink)
	if !errors.Is(err, ErrNothingToPlay) {
		t.Fatalf("expected ErrNothingToPlay, got %v", err)
	}
	if status.Last() != StatusNothingToPlay {
		t.Fatalf("expected nothing-to-play status, got %v", status.Messages())
	}
	if len(tape.Calls()) != 0 || p.Playing() {
		t.Fatalf("expected no emission and no state change")
	}
}

func TestPlayRejectsConcurrentPlayback(t *testing.T) {
	release := make(chan struct{})
	sleeper := func(ctx context.Context, d time.Duration) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p := newTestPlayer(t, input.NewTape(nil), sleeper)
	m := macro.New(macro.Event{T: 1, Data: macro.Move{}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Play(context.Background(), m, Params{}, nil)
	}()
	deadline := time.Now().Add(time.Second)
	for !p.Playing() {
		if time.Now().After(deadline) {
			t.Fatalf("playback never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := p.Play(context.Background(), m, Params{}, nil); !errors.Is(err, ErrAlreadyPlaying) {
		t.Fatalf("expected ErrAlreadyPlaying, got %v", err)
	}
	close(release)
	<-done
}

func TestStopInterruptsLongWait(t *testing.T) {
	tape := input.NewTape(nil)
	p := newTestPlayer(t, tape, nil)
	status := &statusLog{}
	m := macro.New(
		macro.Event{T: 0, Data: macro.Move{X: 1, Y: 1}},
		macro.Event{T: 10, Data: macro.Move{X: 2, Y: 2}},
	)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Play(context.Background(), m, Params{Speed: 1}, status.Sink)
		done <- outcome{res, err}
	}()

	deadline := time.Now().Add(time.Second)
	for len(tape.Calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first event never emitted")
		}
		time.Sleep(time.Millisecond)
	}
	stopAt := time.Now()
	p.Stop()

	select {
	case out := <-done:
		if elapsed := time.Since(stopAt); elapsed > 500*time.Millisecond {
			t.Fatalf("stop took %v", elapsed)
		}
		if out.err != nil {
			t.Fatalf("play: %v", out.err)
		}
		if out.res.Outcome != OutcomeStopped || out.res.Emitted != 1 {
			t.Fatalf("unexpected result %+v", out.res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("playback did not stop")
	}

	if len(tape.Calls()) != 1 {
		t.Fatalf("expected no emission after stop, got %d calls", len(tape.Calls()))
	}
	if status.Last() != StatusStopped {
		t.Fatalf("expected stopped status, got %v", status.Messages())
	}
}

func TestStopIsStickyUntilReset(t *testing.T) {
	tape := input.NewTape(nil)
	p := newTestPlayer(t, tape, (&fakeSleeper{}).Sleep)

	p.Stop()
	p.Stop()
	if !p.Stopped() {
		t.Fatalf("expected stopped flag")
	}
	res, err := p.Play(context.Background(), clickScenario(), Params{}, nil)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Outcome != OutcomeStopped || len(tape.Calls()) != 0 {
		t.Fatalf("expected stopped player to emit nothing, got %+v", res)
	}

	p.Reset()
	res, err = p.Play(context.Background(), clickScenario(), Params{}, nil)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Outcome != OutcomeFinished {
		t.Fatalf("expected reset player to finish, got %+v", res)
	}
}

func TestContextCancellationStopsPlayback(t *testing.T) {
	p := newTestPlayer(t, input.NewTape(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Play(ctx, clickScenario(), Params{}, nil)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Outcome != OutcomeStopped || res.Emitted != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPartialFailureContinues(t *testing.T) {
	tape := input.NewTape(nil)
	tape.Fail = func(c input.Call) error {
		if c.Op == input.OpKeyDown && c.Key == macro.Named("bogus") {
			return input.ErrUnresolvedKey
		}
		return nil
	}
	p := newTestPlayer(t, tape, (&fakeSleeper{}).Sleep)
	status := &statusLog{}

	m := macro.New(
		macro.Event{T: 0, Data: macro.KeyPress{Key: macro.Char('a')}},
		macro.Event{T: 0.1, Data: macro.KeyPress{Key: macro.Named("bogus")}},
		macro.Event{T: 0.2, Data: macro.KeyRelease{}},
		macro.Event{T: 0.3, Data: macro.KeyRelease{Key: macro.Char('a')}},
	)
	res, err := p.Play(context.Background(), m, Params{}, status.Sink)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Outcome != OutcomeFinished || res.Emitted != 2 || res.Failed != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	calls := tape.Calls()
	if len(calls) != 2 || calls[0].Op != input.OpKeyDown || calls[1].Op != input.OpKeyUp {
		t.Fatalf("expected healthy events to be emitted, got %+v", calls)
	}

	errorsReported := 0
	for _, msg := range status.Messages() {
		if strings.HasPrefix(msg, "Playback error: ") {
			errorsReported++
		}
	}
	if errorsReported != 2 {
		t.Fatalf("expected 2 error statuses, got %v", status.Messages())
	}
	if status.Last() != StatusFinished {
		t.Fatalf("expected finished status, got %q", status.Last())
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	tape := input.NewTape(nil)
	p := newTestPlayer(t, tape, (&fakeSleeper{}).Sleep)

	events := make([]macro.Event, 0, 200)
	for i := 0; i < 200; i++ {
		events = append(events, macro.Event{T: 0, Data: macro.Move{X: 100, Y: 200}})
	}
	if _, err := p.Play(context.Background(), macro.New(events...), Params{JitterPixels: 3}, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	seen := make(map[int]bool)
	for _, c := range tape.Calls() {
		dx, dy := c.X-100, c.Y-200
		if dx < -3 || dx > 3 || dy < -3 || dy > 3 {
			t.Fatalf("jitter out of bounds: %+v", c)
		}
		seen[dx] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected jitter to vary positions, saw offsets %v", seen)
	}
}

func TestJitterAppliesToClicksOnly(t *testing.T) {
	tape := input.NewTape(nil)
	var requested []int
	p, err := New(Options{
		Emitter: tape,
		Sleeper: (&fakeSleeper{}).Sleep,
		IntN: func(n int) int {
			requested = append(requested, n)
			return n - 1
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m := macro.New(
		macro.Event{T: 0, Data: macro.Click{X: 5, Y: 5, Button: macro.ButtonRight, Pressed: true}},
		macro.Event{T: 0, Data: macro.Scroll{X: 5, Y: 5, DX: 1, DY: 2}},
	)
	if _, err := p.Play(context.Background(), m, Params{JitterPixels: 2}, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	calls := tape.Calls()
	if calls[0].X != 7 || calls[0].Y != 7 {
		t.Fatalf("expected click moved by +2,+2, got %+v", calls[0])
	}
	if calls[2].Op != input.OpScroll || calls[2].DX != 1 || calls[2].DY != 2 {
		t.Fatalf("expected scroll untouched, got %+v", calls[2])
	}
	if len(requested) != 2 || requested[0] != 5 {
		t.Fatalf("expected two draws over [0,5), got %v", requested)
	}
}
