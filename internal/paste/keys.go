package paste

import (
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

type systemKeys struct {
	kb keybd_event.KeyBonding
}

func newSystemKeys() (*systemKeys, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, err
	}
	// The uinput device needs a moment before the first event is delivered.
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return &systemKeys{kb: kb}, nil
}

func (k *systemKeys) Paste() error { return k.kb.Launching() }
