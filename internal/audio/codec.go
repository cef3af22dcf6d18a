package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Sample rates fixed by the live voice protocol: the model consumes 16 kHz
// microphone audio and emits 24 kHz speech.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000

	// CaptureMimeType tags outbound frames for the transport.
	CaptureMimeType = "audio/pcm;rate=16000"
)

// Blob is one transport-encoded audio frame: base64 PCM plus its mime
// descriptor.
type Blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// EncodeCapture quantizes float samples in [-1,1] to 16-bit signed
// little-endian PCM and wraps them as a transport blob. Out-of-range input is
// clamped rather than wrapped.
func EncodeCapture(samples []float32) Blob {
	raw := FloatToPCM16(samples)
	return Blob{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MimeType: CaptureMimeType,
	}
}

// DecodePlayback reverses the transport encoding: base64 to little-endian
// int16 samples, de-interleaved to the first channel, normalized to [-1,1].
func DecodePlayback(data string, sampleRate, channels int) ([]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("audio: odd PCM byte length %d", len(raw))
	}
	total := len(raw) / 2
	frames := total / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i*channels : 2*i*channels+2]))
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// FloatToPCM16 converts float samples in [-1,1] to raw 16-bit LE bytes.
func FloatToPCM16(samples []float32) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(int16(v)))
	}
	return raw
}

// PCM16ToFloat converts raw 16-bit LE mono bytes to normalized floats.
// A trailing odd byte is ignored.
func PCM16ToFloat(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	return out
}

// FrameDuration returns the playback duration of a raw 16-bit mono PCM
// payload at the given rate.
func FrameDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
