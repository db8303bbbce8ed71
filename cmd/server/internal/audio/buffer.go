package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

// Buffer 是解码后的单声道 PCM 样本缓冲，切片阶段在它上面按索引取段。
type Buffer struct {
	Samples    []int
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the samples in [startIdx, endIdx) clamped to the buffer
// bounds. An empty or inverted range yields nil. The returned slice aliases
// the buffer; callers must not mutate it.
func (b *Buffer) Slice(startIdx, endIdx int) []int {
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(b.Samples) {
		endIdx = len(b.Samples)
	}
	if startIdx >= endIdx {
		return nil
	}
	return b.Samples[startIdx:endIdx]
}

// SliceBounds converts a turn's start/end seconds into sample indices:
// floor(t × rate) on both ends, half-open on the right.
func SliceBounds(start, end float64, rate int) (int, int) {
	return int(math.Floor(start * float64(rate))), int(math.Floor(end * float64(rate)))
}

// Decode reads a WAV file into a mono sample buffer. Multi-channel input is
// rejected; callers normalize through ffmpeg first.
func Decode(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file: %s", filepath.Base(path))
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels != 1 {
		ch := 0
		if buf.Format != nil {
			ch = buf.Format.NumChannels
		}
		return nil, fmt.Errorf("expected mono audio, got %d channels", ch)
	}

	return &Buffer{
		Samples:    buf.Data,
		SampleRate: buf.Format.SampleRate,
	}, nil
}
