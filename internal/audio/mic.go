package audio

import (
	"sync"

	"github.com/gen2brain/malgo"
)

// MicInput captures 16 kHz mono microphone audio via malgo and cuts it into
// FrameSamples-sized frames.
type MicInput struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	frames chan []float32

	mu      sync.Mutex
	pending []byte
	started bool
	closed  bool
}

// NewMicInput returns an unstarted microphone handle.
func NewMicInput() *MicInput {
	return &MicInput{frames: make(chan []float32, 16)}
}

// Start acquires the default capture device and begins producing frames.
func (m *MicInput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return &DeviceError{Device: "microphone", Err: err}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = CaptureRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onCapture(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return &DeviceError{Device: "microphone", Err: err}
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return &DeviceError{Device: "microphone", Err: err}
	}

	m.malgoCtx = malgoCtx
	m.device = device
	m.started = true
	return nil
}

// Frames yields capture frames. The channel closes on Close.
func (m *MicInput) Frames() <-chan []float32 { return m.frames }

// onCapture runs on the device callback thread; it accumulates raw PCM and
// emits complete frames without blocking.
func (m *MicInput) onCapture(input []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = append(m.pending, input...)
	const frameBytes = FrameSamples * 2
	for len(m.pending) >= frameBytes {
		frame := PCM16ToFloat(m.pending[:frameBytes])
		m.pending = m.pending[frameBytes:]
		select {
		case m.frames <- frame:
		default:
			// consumer stalled; drop rather than block the device thread
		}
	}
}

// Close stops capture and releases the device. Safe to call repeatedly and
// before Start.
func (m *MicInput) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	device := m.device
	malgoCtx := m.malgoCtx
	m.device = nil
	m.malgoCtx = nil
	m.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if malgoCtx != nil {
		_ = malgoCtx.Uninit()
	}
	close(m.frames)
	return nil
}
