package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestEncodeCapture_MimeType(t *testing.T) {
	b := EncodeCapture([]float32{0})
	if b.MimeType != "audio/pcm;rate=16000" {
		t.Fatalf("unexpected mime type: %q", b.MimeType)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = rng.Float32()*2 - 1
	}
	// include exact edge values
	samples[0], samples[1], samples[2] = -1, 0, 1

	blob := EncodeCapture(samples)
	got, err := DecodePlayback(blob.Data, CaptureRate, 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(samples))
	}
	const eps = 1.0 / 32768.0
	for i := range samples {
		if d := math.Abs(float64(got[i] - samples[i])); d > eps {
			t.Fatalf("sample %d: got %f want %f (err %g > %g)", i, got[i], samples[i], d, eps)
		}
	}
}

func TestEncodeCapture_ClampsOutOfRange(t *testing.T) {
	blob := EncodeCapture([]float32{2.0, -2.0})
	raw, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	hi := int16(binary.LittleEndian.Uint16(raw[0:2]))
	lo := int16(binary.LittleEndian.Uint16(raw[2:4]))
	if hi != 32767 {
		t.Fatalf("positive overflow must clamp to 32767, got %d", hi)
	}
	if lo != -32768 {
		t.Fatalf("negative overflow must clamp to -32768, got %d", lo)
	}
}

func TestDecodePlayback_DeinterleavesStereo(t *testing.T) {
	// two frames of stereo: L=16384, R=-16384
	raw := make([]byte, 8)
	left, right := int16(16384), int16(-16384)
	binary.LittleEndian.PutUint16(raw[0:], uint16(left))
	binary.LittleEndian.PutUint16(raw[2:], uint16(right))
	binary.LittleEndian.PutUint16(raw[4:], uint16(left))
	binary.LittleEndian.PutUint16(raw[6:], uint16(right))
	got, err := DecodePlayback(base64.StdEncoding.EncodeToString(raw), PlaybackRate, 2)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 mono frames, got %d", len(got))
	}
	for i, v := range got {
		if v != 0.5 {
			t.Fatalf("frame %d: expected left channel 0.5, got %f", i, v)
		}
	}
}

func TestDecodePlayback_Invalid(t *testing.T) {
	if _, err := DecodePlayback("!!!not-base64!!!", PlaybackRate, 1); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := DecodePlayback("", PlaybackRate, 0); err == nil {
		t.Fatal("expected channel count error")
	}
	odd := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	if _, err := DecodePlayback(odd, PlaybackRate, 1); err == nil {
		t.Fatal("expected odd-length error")
	}
}

func TestFrameDuration(t *testing.T) {
	// 24000 samples at 24kHz = 1s
	if d := FrameDuration(48000, PlaybackRate); d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
	// 4096 samples at 16kHz = 256ms
	if d := FrameDuration(8192, CaptureRate); d != 256*time.Millisecond {
		t.Fatalf("expected 256ms, got %v", d)
	}
}
