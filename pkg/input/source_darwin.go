//go:build darwin

package input

/*
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

static Boolean axCheckTrusted(void) {
        const void *keys[] = { kAXTrustedCheckOptionPrompt };
        const void *values[] = { kCFBooleanTrue };
        CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
                                                     &kCFTypeDictionaryKeyCallBacks,
                                                     &kCFTypeDictionaryValueCallBacks);
        Boolean trusted = AXIsProcessTrustedWithOptions(options);
        CFRelease(options);
        return trusted;
}

extern CGEventRef goHandleInputEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFRunLoopSourceRef startEventTap(uintptr_t handle, CGEventMask mask, CFMachPortRef *tapOut) {
        CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
                                             kCGHeadInsertEventTap,
                                             kCGEventTapOptionListenOnly,
                                             mask,
                                             goHandleInputEvent,
                                             (void *)handle);
        if (tap == NULL) {
                return NULL;
        }
        CGEventTapEnable(tap, true);
        CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
        *tapOut = tap;
        return source;
}

static void enableTap(CFMachPortRef tap) {
        CGEventTapEnable(tap, true);
}

static CFRunLoopRef currentRunLoop(void) {
        return CFRunLoopGetCurrent();
}

static CGEventMask cgEventMaskBit(CGEventType type) {
        return ((CGEventMask)1) << type;
}

static void addSourceToRunLoop(CFRunLoopRef loop, CFRunLoopSourceRef source) {
        CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static void runCurrentRunLoop(void) {
        CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef loop) {
        CFRunLoopStop(loop);
}

static double cgEventGetX(CGEventRef event) {
        CGPoint point = CGEventGetLocation(event);
        return point.x;
}

static double cgEventGetY(CGEventRef event) {
        CGPoint point = CGEventGetLocation(event);
        return point.y;
}

static int64_t cgEventGetKeycode(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}

static int64_t cgEventGetButtonNumber(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGMouseEventButtonNumber);
}

static int64_t cgEventGetScrollDeltaY(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGScrollWheelEventDeltaAxis1);
}

static int64_t cgEventGetScrollDeltaX(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGScrollWheelEventDeltaAxis2);
}

static int cgEventGetUnicode(CGEventRef event, UniChar *buf, int max) {
        UniCharCount n = 0;
        CGEventKeyboardGetUnicodeString(event, (UniCharCount)max, &n, buf);
        return (int)n;
}
*/
import "C"

import (
	"context"
	"errors"
	"math"
	"runtime"
	"runtime/cgo"
	"sync"
	"unicode"
	"unicode/utf16"
	"unsafe"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

type macSource struct{}

func defaultSource() Source {
	return macSource{}
}

type macStream struct {
	handler   Handler
	tap       C.CFMachPortRef
	stopLoop  func()
	stopped   chan struct{}
	closeOnce sync.Once
	// held tracks modifier keys, which arrive as flagsChanged toggles.
	held map[uint16]bool
}

func (s *macStream) close() {
	s.closeOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *macStream) handleKeyboard(eventType C.CGEventType, event C.CGEventRef) {
	code := uint16(C.cgEventGetKeycode(event))
	if eventType == C.kCGEventFlagsChanged {
		if !modifierKeycodes[code] {
			return
		}
		sym := symbolForKeycode(code)
		if s.held[code] {
			delete(s.held, code)
			s.handler.OnKeyRelease(sym)
			return
		}
		s.held[code] = true
		s.handler.OnKeyPress(sym)
		return
	}

	sym := keySymbolFor(code, event)
	if eventType == C.kCGEventKeyUp {
		s.handler.OnKeyRelease(sym)
		return
	}
	s.handler.OnKeyPress(sym)
}

func keySymbolFor(code uint16, event C.CGEventRef) macro.KeySymbol {
	if _, named := keycodeNames[code]; named {
		return symbolForKeycode(code)
	}
	var buf [4]C.UniChar
	n := int(C.cgEventGetUnicode(event, &buf[0], C.int(len(buf))))
	if n > 0 {
		units := make([]uint16, n)
		for i := 0; i < n; i++ {
			units[i] = uint16(buf[i])
		}
		runes := utf16.Decode(units)
		if len(runes) == 1 && unicode.IsPrint(runes[0]) {
			return macro.Char(runes[0])
		}
	}
	return symbolForKeycode(code)
}

func (s *macStream) handleMouse(eventType C.CGEventType, event C.CGEventRef) {
	x := int(math.Round(float64(C.cgEventGetX(event))))
	y := int(math.Round(float64(C.cgEventGetY(event))))

	switch eventType {
	case C.kCGEventMouseMoved, C.kCGEventLeftMouseDragged,
		C.kCGEventRightMouseDragged, C.kCGEventOtherMouseDragged:
		s.handler.OnMove(x, y)
	case C.kCGEventLeftMouseDown:
		s.handler.OnClick(x, y, macro.ButtonLeft, true)
	case C.kCGEventLeftMouseUp:
		s.handler.OnClick(x, y, macro.ButtonLeft, false)
	case C.kCGEventRightMouseDown:
		s.handler.OnClick(x, y, macro.ButtonRight, true)
	case C.kCGEventRightMouseUp:
		s.handler.OnClick(x, y, macro.ButtonRight, false)
	case C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp:
		if C.cgEventGetButtonNumber(event) != 2 {
			return
		}
		s.handler.OnClick(x, y, macro.ButtonMiddle, eventType == C.kCGEventOtherMouseDown)
	case C.kCGEventScrollWheel:
		dy := int(C.cgEventGetScrollDeltaY(event))
		dx := int(C.cgEventGetScrollDeltaX(event))
		s.handler.OnScroll(x, y, dx, dy)
	}
}

func (macSource) Listen(ctx context.Context, h Handler) error {
	if C.axCheckTrusted() == C.Boolean(0) {
		return ErrAccessibilityPermission
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stream := &macStream{
		handler: h,
		stopped: make(chan struct{}),
		held:    make(map[uint16]bool),
	}
	handle := cgo.NewHandle(stream)
	defer handle.Delete()

	mask := C.cgEventMaskBit(C.kCGEventKeyDown) |
		C.cgEventMaskBit(C.kCGEventKeyUp) |
		C.cgEventMaskBit(C.kCGEventFlagsChanged) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDown) |
		C.cgEventMaskBit(C.kCGEventLeftMouseUp) |
		C.cgEventMaskBit(C.kCGEventRightMouseDown) |
		C.cgEventMaskBit(C.kCGEventRightMouseUp) |
		C.cgEventMaskBit(C.kCGEventOtherMouseDown) |
		C.cgEventMaskBit(C.kCGEventOtherMouseUp) |
		C.cgEventMaskBit(C.kCGEventMouseMoved) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDragged) |
		C.cgEventMaskBit(C.kCGEventRightMouseDragged) |
		C.cgEventMaskBit(C.kCGEventOtherMouseDragged) |
		C.cgEventMaskBit(C.kCGEventScrollWheel)

	var tap C.CFMachPortRef
	source := C.startEventTap(C.uintptr_t(handle), mask, &tap)
	if source == 0 {
		return errors.New("failed to create CGEvent tap")
	}
	defer C.CFRelease(C.CFTypeRef(source))
	defer C.CFRelease(C.CFTypeRef(tap))
	stream.tap = tap

	loop := C.currentRunLoop()
	stopOnce := sync.Once{}
	stream.stopLoop = func() {
		stopOnce.Do(func() {
			C.stopRunLoop(loop)
		})
	}
	C.addSourceToRunLoop(loop, source)

	cancelWatcher := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.stopLoop()
		case <-stream.stopped:
		}
		close(cancelWatcher)
	}()

	C.runCurrentRunLoop()
	stream.stopLoop()
	stream.close()
	<-cancelWatcher
	return ctx.Err()
}

//export goHandleInputEvent
func goHandleInputEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	handle := cgo.Handle(uintptr(userInfo))
	stream, ok := handle.Value().(*macStream)
	if !ok {
		return event
	}

	switch eventType {
	case C.kCGEventTapDisabledByTimeout, C.kCGEventTapDisabledByUserInput:
		// The system disables slow taps; turn it straight back on.
		if stream.tap != 0 {
			C.enableTap(stream.tap)
		}
	case C.kCGEventKeyDown, C.kCGEventKeyUp, C.kCGEventFlagsChanged:
		stream.handleKeyboard(eventType, event)
	case C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp,
		C.kCGEventRightMouseDown, C.kCGEventRightMouseUp,
		C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp,
		C.kCGEventMouseMoved, C.kCGEventLeftMouseDragged,
		C.kCGEventRightMouseDragged, C.kCGEventOtherMouseDragged,
		C.kCGEventScrollWheel:
		stream.handleMouse(eventType, event)
	}

	return event
}
