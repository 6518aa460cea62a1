//go:build darwin

package oshook

import (
	"github.com/snarg/dictation/internal/hotkey"
	gdhotkey "golang.design/x/hotkey"
)

var osModifiers = map[hotkey.Modifier]gdhotkey.Modifier{
	hotkey.ModCtrl:  gdhotkey.ModCtrl,
	hotkey.ModShift: gdhotkey.ModShift,
	hotkey.ModAlt:   gdhotkey.ModOption,
	hotkey.ModWin:   gdhotkey.ModCmd,
}

// Carbon virtual key codes (kVK_ANSI_Keypad*).
var keypadKeys = map[string]gdhotkey.Key{
	"*":        gdhotkey.Key(0x43),
	"-":        gdhotkey.Key(0x4E),
	"add":      gdhotkey.Key(0x45),
	"/":        gdhotkey.Key(0x4B),
	"numpad0":  gdhotkey.Key(0x52),
	"numpad1":  gdhotkey.Key(0x53),
	"numpad2":  gdhotkey.Key(0x54),
	"numpad3":  gdhotkey.Key(0x55),
	"numpad4":  gdhotkey.Key(0x56),
	"numpad5":  gdhotkey.Key(0x57),
	"numpad6":  gdhotkey.Key(0x58),
	"numpad7":  gdhotkey.Key(0x59),
	"numpad8":  gdhotkey.Key(0x5B),
	"numpad9":  gdhotkey.Key(0x5C),
	"minus":    gdhotkey.Key(0x1B),
	"multiply": gdhotkey.Key(0x43),
}
