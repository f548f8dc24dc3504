// Package input connects macros to the host: a Source delivers global mouse
// and keyboard events to a Handler, and an Emitter synthesises them again.
// On darwin both sides use Quartz events (with Accessibility approval); other
// platforms get a deterministic synthetic source and a logging emitter.
package input

import (
	"context"
	"errors"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

var (
	// ErrAccessibilityPermission indicates the host must grant Accessibility trust.
	ErrAccessibilityPermission = errors.New("macOS accessibility permission required for input capture")
	// ErrUnresolvedKey reports a key symbol the emitter cannot map to a platform key.
	ErrUnresolvedKey = errors.New("unresolved key symbol")
)

// Handler receives global input events. Implementations must be safe to call
// from the source's own goroutine and should return quickly.
type Handler interface {
	OnMove(x, y int)
	OnClick(x, y int, button macro.Button, pressed bool)
	OnScroll(x, y, dx, dy int)
	OnKeyPress(key macro.KeySymbol)
	OnKeyRelease(key macro.KeySymbol)
}

// Source streams global input to a handler until ctx is cancelled.
type Source interface {
	Listen(ctx context.Context, h Handler) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, h Handler) error

// Listen calls the underlying function.
func (f SourceFunc) Listen(ctx context.Context, h Handler) error {
	return f(ctx, h)
}

// Emitter synthesises input on the host.
type Emitter interface {
	MoveTo(x, y int) error
	Press(button macro.Button) error
	Release(button macro.Button) error
	Scroll(dx, dy int) error
	KeyDown(key macro.KeySymbol) error
	KeyUp(key macro.KeySymbol) error
}

// Dispatch delivers a recorded payload to a handler as if it had been
// observed live.
func Dispatch(h Handler, p macro.Payload) {
	switch ev := p.(type) {
	case macro.Move:
		h.OnMove(ev.X, ev.Y)
	case macro.Click:
		h.OnClick(ev.X, ev.Y, ev.Button, ev.Pressed)
	case macro.Scroll:
		h.OnScroll(ev.X, ev.Y, ev.DX, ev.DY)
	case macro.KeyPress:
		h.OnKeyPress(ev.Key)
	case macro.KeyRelease:
		h.OnKeyRelease(ev.Key)
	}
}

// Multi fans every event out to each handler in order.
func Multi(handlers ...Handler) Handler {
	filtered := make(multiHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

type multiHandler []Handler

func (m multiHandler) OnMove(x, y int) {
	for _, h := range m {
		h.OnMove(x, y)
	}
}

func (m multiHandler) OnClick(x, y int, button macro.Button, pressed bool) {
	for _, h := range m {
		h.OnClick(x, y, button, pressed)
	}
}

func (m multiHandler) OnScroll(x, y, dx, dy int) {
	for _, h := range m {
		h.OnScroll(x, y, dx, dy)
	}
}

func (m multiHandler) OnKeyPress(key macro.KeySymbol) {
	for _, h := range m {
		h.OnKeyPress(key)
	}
}

func (m multiHandler) OnKeyRelease(key macro.KeySymbol) {
	for _, h := range m {
		h.OnKeyRelease(key)
	}
}

// DefaultSource returns the platform event source.
func DefaultSource() Source {
	return defaultSource()
}

// DefaultEmitter returns the platform emitter.
func DefaultEmitter(opts EmitterOptions) Emitter {
	return defaultEmitter(opts)
}
