package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteClip writes samples as a 16-bit PCM mono WAV at path. Clips are the
// single-use files fed to the speech recognizer; the caller removes them
// right after the transcription call returns.
func WriteClip(path string, samples []int, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create clip: %w", err)
	}

	enc := wav.NewEncoder(f, rate, TargetBitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: TargetBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode clip: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("finalize clip: %w", err)
	}
	return f.Close()
}
