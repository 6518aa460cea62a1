//go:build linux

package oshook

import (
	"github.com/snarg/dictation/internal/hotkey"
	gdhotkey "golang.design/x/hotkey"
)

// Alt is Mod1 and Super is Mod4 on X11.
var osModifiers = map[hotkey.Modifier]gdhotkey.Modifier{
	hotkey.ModCtrl:  gdhotkey.ModCtrl,
	hotkey.ModShift: gdhotkey.ModShift,
	hotkey.ModAlt:   gdhotkey.Mod1,
	hotkey.ModWin:   gdhotkey.Mod4,
}

// X11 keysyms.
var keypadKeys = map[string]gdhotkey.Key{
	"*":        gdhotkey.Key(0xffaa),
	"-":        gdhotkey.Key(0xffad),
	"add":      gdhotkey.Key(0xffab),
	"/":        gdhotkey.Key(0xffaf),
	"numpad0":  gdhotkey.Key(0xffb0),
	"numpad1":  gdhotkey.Key(0xffb1),
	"numpad2":  gdhotkey.Key(0xffb2),
	"numpad3":  gdhotkey.Key(0xffb3),
	"numpad4":  gdhotkey.Key(0xffb4),
	"numpad5":  gdhotkey.Key(0xffb5),
	"numpad6":  gdhotkey.Key(0xffb6),
	"numpad7":  gdhotkey.Key(0xffb7),
	"numpad8":  gdhotkey.Key(0xffb8),
	"numpad9":  gdhotkey.Key(0xffb9),
	"minus":    gdhotkey.Key(0x2d),
	"multiply": gdhotkey.Key(0xffaa),
}
