package transcode

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/model"
)

// Config controls the ffmpeg invocation.
type Config struct {
	Command    string
	SampleRate int
	Channels   int
	Timeout    time.Duration
}

// FFmpeg converts whatever container the browser recorded into 16-bit PCM WAV
// at a fixed sample rate and channel count.
type FFmpeg struct {
	cfg Config
}

func NewFFmpeg(cfg Config) *FFmpeg {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &FFmpeg{cfg: cfg}
}

// Convert transcodes inputPath into outputPath. Any failure is a conversion
// error.
func (f *FFmpeg) Convert(ctx context.Context, inputPath, outputPath string) error {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-ac", strconv.Itoa(f.cfg.Channels),
		"-ar", strconv.Itoa(f.cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, f.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = errors.Wrap(ctx.Err(), "ffmpeg interrupted")
		}
		if detail := trimmed(stderr.Bytes()); detail != "" {
			err = errors.Wrap(err, detail)
		}
		return model.NewPipelineError(model.KindConversion, err)
	}

	if err := f.verify(outputPath); err != nil {
		return model.NewPipelineError(model.KindConversion, err)
	}
	return nil
}

// verify checks that ffmpeg produced the format the transcriber expects.
func (f *FFmpeg) verify(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open converted audio")
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return errors.New("converted audio is not a valid WAV file")
	}
	if int(decoder.SampleRate) != f.cfg.SampleRate {
		return errors.Errorf("converted audio has sample rate %d, want %d", decoder.SampleRate, f.cfg.SampleRate)
	}
	if int(decoder.NumChans) != f.cfg.Channels {
		return errors.Errorf("converted audio has %d channels, want %d", decoder.NumChans, f.cfg.Channels)
	}
	return nil
}

func trimmed(b []byte) string {
	const limit = 512
	out := bytes.TrimSpace(b)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return string(out)
}
