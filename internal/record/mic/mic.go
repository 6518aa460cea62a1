// Package mic opens the default input device through PortAudio.
package mic

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/snarg/dictation/internal/record"
)

type stream struct {
	s   *portaudio.Stream
	buf []int16
}

// Open initializes PortAudio and starts a blocking input stream on the
// default device. Close terminates PortAudio again.
func Open(sampleRate, channels, framesPerBuffer int) (record.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	buf := make([]int16, framesPerBuffer*channels)
	s, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &stream{s: s, buf: buf}, nil
}

func (st *stream) Read(dst []int16) (int, error) {
	if err := st.s.Read(); err != nil {
		return 0, err
	}
	return copy(dst, st.buf), nil
}

func (st *stream) Close() error {
	stopErr := st.s.Stop()
	closeErr := st.s.Close()
	portaudio.Terminate()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
