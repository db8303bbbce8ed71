// Package audio owns the ingest side of the pipeline: persisting uploads,
// normalizing arbitrary input containers to 16 kHz mono PCM WAV through
// ffmpeg, decoding WAV files into sample buffers, and writing the short-lived
// per-turn clips handed to the speech recognizer.
package audio

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

const (
	// TargetSampleRate 是流水线内部统一的采样率，所有输入在切片前都归一到它。
	TargetSampleRate = 16000

	// TargetBitDepth is the PCM bit depth used for normalized audio and clips.
	TargetBitDepth = 16

	// maxFFmpegOutput bounds how much converter output is kept in errors.
	maxFFmpegOutput = 2048
)

// SaveUpload streams src into destPath and returns the stored byte count and
// the MD5 hex digest of the content. The digest is what result memoization
// and the audit log key on. A partial write removes the file before returning.
func SaveUpload(src io.Reader, destPath string) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return 0, "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(dst, hash), src)
	if err != nil {
		os.Remove(destPath)
		return 0, "", fmt.Errorf("write upload: %w", err)
	}
	return n, hex.EncodeToString(hash.Sum(nil)), nil
}

// FileMD5 计算文件的MD5哈希值，返回十六进制字符串。
func FileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate MD5: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// IsConformantWAV reports whether path already is a PCM WAV at the pipeline's
// target rate, mono, 16-bit. Conformant files skip the ffmpeg round trip.
func IsConformantWAV(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.Err() != nil {
		return false
	}
	return dec.WavAudioFormat == 1 &&
		dec.NumChans == 1 &&
		dec.SampleRate == TargetSampleRate &&
		dec.BitDepth == TargetBitDepth
}

// Normalize converts inputPath to a 16 kHz mono 16-bit PCM WAV at outputPath
// using ffmpeg. Converter output is captured and a bounded excerpt is folded
// into the error on failure.
func Normalize(ctx context.Context, ffmpegPath, inputPath, outputPath string) error {
	bin := strings.TrimSpace(ffmpegPath)
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-y", // 覆盖输出文件
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", TargetSampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg conversion failed: %w: %s", err, tailString(string(output), maxFFmpegOutput))
	}
	return nil
}

// EnsureNormalized materializes the pipeline-format WAV for inputPath at
// outputPath. Already-conformant WAV uploads are copied as-is so ffmpeg is
// only required when compressed input actually shows up.
func EnsureNormalized(ctx context.Context, ffmpegPath, inputPath, outputPath string) error {
	if IsConformantWAV(inputPath) {
		return copyFile(inputPath, outputPath)
	}
	return Normalize(ctx, ffmpegPath, inputPath, outputPath)
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return nil
}

// tailString keeps the last max bytes of s.
func tailString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
