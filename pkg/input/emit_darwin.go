//go:build darwin

package input

/*
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>
#include <stdbool.h>
#include <stdint.h>

static Boolean axIsTrusted(void) {
        return AXIsProcessTrusted();
}

static CGPoint currentLocation(void) {
        CGEventRef event = CGEventCreate(NULL);
        CGPoint point = CGEventGetLocation(event);
        CFRelease(event);
        return point;
}

static int postMouse(CGEventType type, double x, double y, CGMouseButton button) {
        CGEventRef event = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), button);
        if (event == NULL) {
                return -1;
        }
        CGEventPost(kCGHIDEventTap, event);
        CFRelease(event);
        return 0;
}

static int postScroll(int32_t dx, int32_t dy) {
        CGEventRef event = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitLine, 2, dy, dx);
        if (event == NULL) {
                return -1;
        }
        CGEventPost(kCGHIDEventTap, event);
        CFRelease(event);
        return 0;
}

static int postKeycode(uint16_t code, bool down) {
        CGEventRef event = CGEventCreateKeyboardEvent(NULL, (CGKeyCode)code, down);
        if (event == NULL) {
                return -1;
        }
        CGEventPost(kCGHIDEventTap, event);
        CFRelease(event);
        return 0;
}

static int postUnicode(UniChar *chars, int n, bool down) {
        CGEventRef event = CGEventCreateKeyboardEvent(NULL, 0, down);
        if (event == NULL) {
                return -1;
        }
        CGEventKeyboardSetUnicodeString(event, (UniCharCount)n, chars);
        CGEventPost(kCGHIDEventTap, event);
        CFRelease(event);
        return 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf16"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

var errPost = errors.New("quartz rejected synthetic event")

type macEmitter struct {
	opts EmitterOptions

	mu   sync.Mutex
	held map[macro.Button]bool
}

func defaultEmitter(opts EmitterOptions) Emitter {
	return &macEmitter{opts: opts, held: make(map[macro.Button]bool)}
}

func (e *macEmitter) checkTrust() error {
	if C.axIsTrusted() == C.Boolean(0) {
		return ErrAccessibilityPermission
	}
	return nil
}

func mouseButton(b macro.Button) (C.CGMouseButton, error) {
	switch b {
	case macro.ButtonLeft:
		return C.kCGMouseButtonLeft, nil
	case macro.ButtonRight:
		return C.kCGMouseButtonRight, nil
	case macro.ButtonMiddle:
		return C.kCGMouseButtonCenter, nil
	default:
		return 0, fmt.Errorf("unsupported mouse button %q", b)
	}
}

func (e *macEmitter) MoveTo(x, y int) error {
	if err := e.checkTrust(); err != nil {
		return err
	}
	e.mu.Lock()
	eventType := C.CGEventType(C.kCGEventMouseMoved)
	button := C.CGMouseButton(C.kCGMouseButtonLeft)
	switch {
	case e.held[macro.ButtonLeft]:
		eventType = C.kCGEventLeftMouseDragged
	case e.held[macro.ButtonRight]:
		eventType = C.kCGEventRightMouseDragged
		button = C.kCGMouseButtonRight
	case e.held[macro.ButtonMiddle]:
		eventType = C.kCGEventOtherMouseDragged
		button = C.kCGMouseButtonCenter
	}
	e.mu.Unlock()
	if C.postMouse(eventType, C.double(x), C.double(y), button) != 0 {
		return fmt.Errorf("move to %d,%d: %w", x, y, errPost)
	}
	return nil
}

func (e *macEmitter) button(b macro.Button, down bool) error {
	if err := e.checkTrust(); err != nil {
		return err
	}
	cb, err := mouseButton(b)
	if err != nil {
		return err
	}
	var eventType C.CGEventType
	switch b {
	case macro.ButtonLeft:
		eventType = C.kCGEventLeftMouseUp
		if down {
			eventType = C.kCGEventLeftMouseDown
		}
	case macro.ButtonRight:
		eventType = C.kCGEventRightMouseUp
		if down {
			eventType = C.kCGEventRightMouseDown
		}
	default:
		eventType = C.kCGEventOtherMouseUp
		if down {
			eventType = C.kCGEventOtherMouseDown
		}
	}
	point := C.currentLocation()
	if C.postMouse(eventType, point.x, point.y, cb) != 0 {
		return fmt.Errorf("%s button %s: %w", b, pressLabel(down), errPost)
	}
	e.mu.Lock()
	if down {
		e.held[b] = true
	} else {
		delete(e.held, b)
	}
	e.mu.Unlock()
	return nil
}

func (e *macEmitter) Press(b macro.Button) error { return e.button(b, true) }

func (e *macEmitter) Release(b macro.Button) error { return e.button(b, false) }

func (e *macEmitter) Scroll(dx, dy int) error {
	if err := e.checkTrust(); err != nil {
		return err
	}
	if C.postScroll(C.int32_t(dx), C.int32_t(dy)) != 0 {
		return fmt.Errorf("scroll %d,%d: %w", dx, dy, errPost)
	}
	return nil
}

func (e *macEmitter) key(k macro.KeySymbol, down bool) error {
	if err := e.checkTrust(); err != nil {
		return err
	}
	if k.IsZero() {
		return ErrUnresolvedKey
	}
	if k.IsChar() {
		units := utf16.Encode([]rune{k.Char})
		buf := make([]C.UniChar, len(units))
		for i, u := range units {
			buf[i] = C.UniChar(u)
		}
		if C.postUnicode(&buf[0], C.int(len(buf)), C.bool(down)) != 0 {
			return fmt.Errorf("key %s %s: %w", k, pressLabel(down), errPost)
		}
		return nil
	}
	code, err := keycodeForName(k.Name)
	if err != nil {
		return err
	}
	if C.postKeycode(C.uint16_t(code), C.bool(down)) != 0 {
		return fmt.Errorf("key %s %s: %w", k, pressLabel(down), errPost)
	}
	return nil
}

func (e *macEmitter) KeyDown(k macro.KeySymbol) error { return e.key(k, true) }

func (e *macEmitter) KeyUp(k macro.KeySymbol) error { return e.key(k, false) }

func pressLabel(down bool) string {
	if down {
		return "down"
	}
	return "up"
}
