package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/clock"
	"github.com/offlinefirst/tinymacro/pkg/macro"
)

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestRecorder(ft *fakeTime, opts Options) *Recorder {
	opts.Clock = clock.New(clock.WithSource(ft.Now))
	opts.Now = ft.Now
	return New(opts)
}

func TestIdleRecorderIgnoresEvents(t *testing.T) {
	r := newTestRecorder(newFakeTime(), Options{})
	r.OnMove(1, 1)
	r.OnKeyPress(macro.Char('a'))
	if m := r.Stop(); !m.IsEmpty() {
		t.Fatalf("expected no events while idle, got %d", m.Len())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	ft := newFakeTime()
	r := newTestRecorder(ft, Options{})

	if !r.Start() {
		t.Fatalf("expected first start to succeed")
	}
	if r.Start() {
		t.Fatalf("expected second start to be a no-op")
	}
	if !r.Recording() {
		t.Fatalf("expected recording state")
	}

	r.OnClick(5, 5, macro.ButtonLeft, true)
	ft.Advance(100 * time.Millisecond)
	r.OnClick(5, 5, macro.ButtonLeft, false)

	m := r.Stop()
	if r.Recording() {
		t.Fatalf("expected idle after stop")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", m.Len())
	}
	if m.Events[0].T != 0 || m.Events[1].T != 0.1 {
		t.Fatalf("unexpected timestamps %v %v", m.Events[0].T, m.Events[1].T)
	}

	r.OnMove(9, 9)
	again := r.Stop()
	if again.Len() != 2 {
		t.Fatalf("expected stop while idle to return the frozen macro, got %d events", again.Len())
	}

	again.Events[0] = macro.Event{T: 5, Data: macro.Move{}}
	if r.Macro().Events[0].T != 0 {
		t.Fatalf("returned macro must not alias recorder state")
	}
}

func TestStartClearsPreviousMacro(t *testing.T) {
	ft := newFakeTime()
	r := newTestRecorder(ft, Options{})
	r.Start()
	r.OnScroll(0, 0, 0, 1)
	r.Stop()

	ft.Advance(time.Minute)
	r.Start()
	ft.Advance(50 * time.Millisecond)
	r.OnScroll(0, 0, 0, -1)
	m := r.Stop()
	if m.Len() != 1 {
		t.Fatalf("expected previous events to be discarded, got %d", m.Len())
	}
	if m.Events[0].T != 0.05 {
		t.Fatalf("expected clock to restart at Start, got t=%v", m.Events[0].T)
	}
}

func TestMoveThrottling(t *testing.T) {
	ft := newFakeTime()
	r := newTestRecorder(ft, Options{MoveMinInterval: 10 * time.Millisecond})
	r.Start()

	r.OnMove(1, 1) // first move always recorded
	ft.Advance(5 * time.Millisecond)
	r.OnMove(2, 2) // too soon
	ft.Advance(7 * time.Millisecond)
	r.OnMove(2, 2) // 12ms later, new position
	ft.Advance(20 * time.Millisecond)
	r.OnMove(2, 2) // same position
	r.OnClick(2, 2, macro.ButtonLeft, true)
	r.OnClick(2, 2, macro.ButtonLeft, false)
	ft.Advance(10 * time.Millisecond)
	r.OnMove(3, 3) // new position, interval elapsed

	m := r.Stop()
	var moves []macro.Move
	for _, ev := range m.Events {
		if mv, ok := ev.Data.(macro.Move); ok {
			moves = append(moves, mv)
		}
	}
	want := []macro.Move{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	if len(moves) != len(want) {
		t.Fatalf("expected %d moves, got %v", len(want), moves)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Fatalf("move %d: got %v want %v", i, moves[i], want[i])
		}
	}
	if m.Summarize().ByKind[macro.KindClick] != 2 {
		t.Fatalf("expected clicks to bypass throttling")
	}
}

func TestReservedKeysAreFiltered(t *testing.T) {
	r := newTestRecorder(newFakeTime(), Options{
		KeyFilter: ReservedSet(macro.Named("f3"), macro.Named("esc")),
	})
	r.Start()
	r.OnKeyPress(macro.Named("f3"))
	r.OnKeyPress(macro.Char('a'))
	r.OnKeyRelease(macro.Char('a'))
	r.OnKeyRelease(macro.Named("esc"))
	m := r.Stop()
	if m.Len() != 2 {
		t.Fatalf("expected reserved keys to be dropped, got %d events", m.Len())
	}

	r.SetKeyFilter(nil)
	r.Start()
	r.OnKeyPress(macro.Named("f3"))
	if got := r.Stop().Len(); got != 1 {
		t.Fatalf("expected cleared filter to record f3, got %d events", got)
	}
}

func TestReservedSetDistinguishesCharFromNamed(t *testing.T) {
	f := ReservedSet(macro.Named("f5"))
	if f(macro.Char('5')) {
		t.Fatalf("char 5 must not match named f5")
	}
	if !f(macro.Named("F5")) {
		t.Fatalf("expected named f5 to match")
	}
}

func TestSquelchDropsKeysForWindow(t *testing.T) {
	ft := newFakeTime()
	r := newTestRecorder(ft, Options{})
	r.Start()
	r.Squelch(DefaultSquelch)
	r.OnKeyRelease(macro.Named("f3"))
	r.OnMove(4, 4)
	ft.Advance(DefaultSquelch)
	r.OnKeyPress(macro.Char('x'))

	m := r.Stop()
	if m.Len() != 2 {
		t.Fatalf("expected move and post-squelch key, got %d events", m.Len())
	}
	if _, ok := m.Events[1].Data.(macro.KeyPress); !ok {
		t.Fatalf("expected key press after squelch, got %#v", m.Events[1].Data)
	}
}

func TestSetTracking(t *testing.T) {
	r := newTestRecorder(newFakeTime(), Options{IgnoreKeys: true})
	r.Start()
	r.OnKeyPress(macro.Char('a'))
	r.OnMove(1, 1)
	r.SetTracking(false, true)
	r.OnMove(2, 2)
	r.OnClick(2, 2, macro.ButtonRight, true)
	r.OnKeyPress(macro.Char('b'))
	m := r.Stop()
	if m.Len() != 2 {
		t.Fatalf("expected one move and one key, got %d events", m.Len())
	}
	if m.Events[0].Kind() != macro.KindMove || m.Events[1].Kind() != macro.KindKeyPress {
		t.Fatalf("unexpected kinds %s %s", m.Events[0].Kind(), m.Events[1].Kind())
	}
}

func TestConcurrentCallbacksStayMonotonic(t *testing.T) {
	r := New(Options{MoveMinInterval: -1})
	r.Start()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				switch i % 3 {
				case 0:
					r.OnMove(g*1000+i, i)
				case 1:
					r.OnKeyPress(macro.Char('k'))
				default:
					r.OnScroll(0, 0, 0, 1)
				}
			}
		}(g)
	}
	wg.Wait()

	m := r.Stop()
	if m.IsEmpty() {
		t.Fatalf("expected events")
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("expected monotonic macro: %v", err)
	}
}

func TestStopRacesWithCallbacks(t *testing.T) {
	r := New(Options{})
	r.Start()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.OnScroll(0, 0, 0, 1)
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	m := r.Stop()
	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()

	if after := r.Macro(); after.Len() != m.Len() {
		t.Fatalf("events appended after stop: %d then %d", m.Len(), after.Len())
	}
}
