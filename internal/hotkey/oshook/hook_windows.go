//go:build windows

package oshook

import (
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/hotkey"
)

var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procGetCurrentThreadId  = kernel32.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkLWin    = 0x5B
	vkRWin    = 0x5C
)

type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

// asyncKeyState reads live modifier state with GetAsyncKeyState.
type asyncKeyState struct{}

func keyDown(vk uintptr) bool {
	st, _, _ := procGetAsyncKeyState.Call(vk)
	return st&0x8000 != 0
}

func (asyncKeyState) IsPressed(m hotkey.Modifier) bool {
	switch m {
	case hotkey.ModCtrl:
		return keyDown(vkControl)
	case hotkey.ModAlt:
		return keyDown(vkMenu)
	case hotkey.ModShift:
		return keyDown(vkShift)
	case hotkey.ModWin:
		return keyDown(vkLWin) || keyDown(vkRWin)
	}
	return false
}

// New returns the low-level keyboard hook. Matched keys are swallowed
// according to Manager.HandleKeyDown.
func New() hotkey.Platform {
	return &llHook{}
}

// llHook runs a WH_KEYBOARD_LL hook on a dedicated locked OS thread.
type llHook struct {
	threadID uint32
	done     chan struct{}
}

func (p *llHook) Install(m *hotkey.Manager, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		tid, _, _ := procGetCurrentThreadId.Call()
		state := asyncKeyState{}
		swallowed := make(map[uint32]bool)

		callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) < 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}
			k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if k.flags&llkhfInjected != 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}

			switch uint32(wParam) {
			case wmKeyDown, wmSysKeyDown:
				if name, ok := vkNames[k.vkCode]; ok && m.HandleKeyDown(name, state) {
					swallowed[k.vkCode] = true
					return 1
				}
			case wmKeyUp, wmSysKeyUp:
				if swallowed[k.vkCode] {
					delete(swallowed, k.vkCode)
					return 1
				}
			}
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("SetWindowsHookExW: %w", err)
			return
		}
		p.threadID = uint32(tid)
		errCh <- nil

		var msg winMsg
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) <= 0 {
				break
			}
		}
		procUnhookWindowsHookEx.Call(hook)
		log.Debug().Msg("low-level hook loop exited")
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		p.done = done
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timeout installing low-level hook")
	}
}

func (p *llHook) Uninstall() error {
	r, _, err := procPostThreadMessageW.Call(uintptr(p.threadID), wmQuit, 0, 0)
	if r == 0 {
		return fmt.Errorf("PostThreadMessageW: %w", err)
	}
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timeout uninstalling low-level hook")
	}
	return nil
}

// vkNames maps virtual-key codes to the key names used in hotkey strings.
var vkNames = func() map[uint32]string {
	names := map[uint32]string{
		0x08: "backspace",
		0x09: "tab",
		0x0D: "enter",
		0x1B: "esc",
		0x20: "space",
		0x21: "pageup",
		0x22: "pagedown",
		0x23: "end",
		0x24: "home",
		0x25: "left",
		0x26: "up",
		0x27: "right",
		0x28: "down",
		0x2D: "insert",
		0x2E: "delete",
		0x6A: "*",
		0x6B: "add",
		0x6D: "-",
		0x6E: ".",
		0x6F: "/",
		0xBD: "-",
		0xBB: "=",
		0xBC: ",",
		0xBE: ".",
		0xC0: "`",
	}
	for c := 'A'; c <= 'Z'; c++ {
		names[uint32(c)] = string(c + ('a' - 'A'))
	}
	for c := '0'; c <= '9'; c++ {
		names[uint32(c)] = string(c)
		names[0x60+uint32(c-'0')] = fmt.Sprintf("numpad%c", c)
	}
	for n := 1; n <= 24; n++ {
		names[0x70+uint32(n-1)] = fmt.Sprintf("f%d", n)
	}
	return names
}()
