package audio

import "fmt"

// FrameSamples is the fixed capture frame size cut from the live microphone
// stream: 4096 samples, 256ms at 16 kHz.
const FrameSamples = 4096

// Input is an acquired microphone handle. Start must be called before any
// frames flow; Close releases the device and is idempotent.
type Input interface {
	Start() error
	// Frames yields fixed-size normalized sample frames at CaptureRate.
	// The channel closes when the input is closed.
	Frames() <-chan []float32
	Close() error
}

// Output is an acquired playback sink. Start must activate the device
// synchronously (playback hardware may be suspended until explicitly
// started). Write queues raw 16-bit LE mono PCM at PlaybackRate for
// immediate playback; Reset drops anything still queued.
type Output interface {
	Start() error
	Write(pcm []byte)
	Reset()
	Close() error
}

// DeviceError wraps a microphone/speaker acquisition failure. These are
// fatal for the session attempt and never retried.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
