package audio

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SpeakerOutput plays 24 kHz mono 16-bit PCM through the default output
// device via oto. The player pulls from an internal buffer, so writes are
// gapless as long as audio is queued back-to-back.
type SpeakerOutput struct {
	otoCtx *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	started bool
	playing bool
	closed  bool
}

// NewSpeakerOutput returns an unstarted speaker handle.
func NewSpeakerOutput() *SpeakerOutput {
	s := &SpeakerOutput{buf: make([]byte, 0, PlaybackRate*4)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start activates the output device. It blocks until the audio context is
// ready so the activation happens inside the caller's start action.
func (s *SpeakerOutput) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	opts := &oto.NewContextOptions{
		SampleRate:   PlaybackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return &DeviceError{Device: "speaker", Err: err}
	}
	<-ready
	s.otoCtx = otoCtx
	s.started = true
	return nil
}

// Write queues PCM for playback, starting the player on first use.
func (s *SpeakerOutput) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(otoReader{s})
		s.player.Play()
	}
	s.cond.Signal()
}

// Reset drops all queued audio and stops the current player so the next
// Write starts clean.
func (s *SpeakerOutput) Reset() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	s.playing = false
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	if player != nil {
		player.Pause()
		_ = player.Close()
	}
}

// Close releases the output device. Idempotent.
func (s *SpeakerOutput) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	if player != nil {
		_ = player.Close()
	}
	return nil
}

// otoReader adapts the buffered writer to the io.Reader oto pulls from.
type otoReader struct{ s *SpeakerOutput }

func (r otoReader) Read(p []byte) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed && s.playing {
		s.cond.Wait()
	}
	if s.closed || !s.playing {
		// feed silence so oto drains without error
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}
