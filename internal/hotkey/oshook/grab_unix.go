//go:build linux || darwin

package oshook

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/snarg/dictation/internal/hotkey"
	gdhotkey "golang.design/x/hotkey"
)

// New returns the per-combination grab platform.
func New() hotkey.Platform {
	return hotkey.NewGrabPlatform(newGrab)
}

// osGrab forwards key-down events of one registered combination to fire.
type osGrab struct {
	hk   *gdhotkey.Hotkey
	fire func()

	mu   sync.Mutex
	done chan struct{}
}

func newGrab(s hotkey.Spec, fire func()) (hotkey.Grab, error) {
	key, err := osKey(s.Key)
	if err != nil {
		return nil, err
	}
	var mods []gdhotkey.Modifier
	for _, m := range hotkey.AllModifiers {
		if s.Mods.Has(m) {
			mods = append(mods, osModifiers[m])
		}
	}
	return &osGrab{hk: gdhotkey.New(mods, key), fire: fire}, nil
}

func (g *osGrab) Register() error {
	if err := g.hk.Register(); err != nil {
		return err
	}
	done := make(chan struct{})
	g.mu.Lock()
	g.done = done
	g.mu.Unlock()
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-g.hk.Keydown():
				if !ok {
					return
				}
				g.fire()
			}
		}
	}()
	return nil
}

func (g *osGrab) Unregister() error {
	g.mu.Lock()
	if g.done != nil {
		close(g.done)
		g.done = nil
	}
	g.mu.Unlock()
	return g.hk.Unregister()
}

var letterKeys = []gdhotkey.Key{
	gdhotkey.KeyA, gdhotkey.KeyB, gdhotkey.KeyC, gdhotkey.KeyD, gdhotkey.KeyE, gdhotkey.KeyF,
	gdhotkey.KeyG, gdhotkey.KeyH, gdhotkey.KeyI, gdhotkey.KeyJ, gdhotkey.KeyK, gdhotkey.KeyL,
	gdhotkey.KeyM, gdhotkey.KeyN, gdhotkey.KeyO, gdhotkey.KeyP, gdhotkey.KeyQ, gdhotkey.KeyR,
	gdhotkey.KeyS, gdhotkey.KeyT, gdhotkey.KeyU, gdhotkey.KeyV, gdhotkey.KeyW, gdhotkey.KeyX,
	gdhotkey.KeyY, gdhotkey.KeyZ,
}

var digitKeys = []gdhotkey.Key{
	gdhotkey.Key0, gdhotkey.Key1, gdhotkey.Key2, gdhotkey.Key3, gdhotkey.Key4,
	gdhotkey.Key5, gdhotkey.Key6, gdhotkey.Key7, gdhotkey.Key8, gdhotkey.Key9,
}

var functionKeys = []gdhotkey.Key{
	gdhotkey.KeyF1, gdhotkey.KeyF2, gdhotkey.KeyF3, gdhotkey.KeyF4, gdhotkey.KeyF5,
	gdhotkey.KeyF6, gdhotkey.KeyF7, gdhotkey.KeyF8, gdhotkey.KeyF9, gdhotkey.KeyF10,
	gdhotkey.KeyF11, gdhotkey.KeyF12, gdhotkey.KeyF13, gdhotkey.KeyF14, gdhotkey.KeyF15,
	gdhotkey.KeyF16, gdhotkey.KeyF17, gdhotkey.KeyF18, gdhotkey.KeyF19, gdhotkey.KeyF20,
}

var namedKeys = map[string]gdhotkey.Key{
	"space":  gdhotkey.KeySpace,
	"enter":  gdhotkey.KeyReturn,
	"return": gdhotkey.KeyReturn,
	"esc":    gdhotkey.KeyEscape,
	"escape": gdhotkey.KeyEscape,
	"tab":    gdhotkey.KeyTab,
	"delete": gdhotkey.KeyDelete,
	"left":   gdhotkey.KeyLeft,
	"right":  gdhotkey.KeyRight,
	"up":     gdhotkey.KeyUp,
	"down":   gdhotkey.KeyDown,
}

// osKey resolves a key name to the platform key code.
func osKey(name string) (gdhotkey.Key, error) {
	if k, ok := keypadKeys[name]; ok {
		return k, nil
	}
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return letterKeys[c-'a'], nil
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], nil
		}
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "f")); err == nil && strings.HasPrefix(name, "f") && n >= 1 && n <= len(functionKeys) {
		return functionKeys[n-1], nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}
