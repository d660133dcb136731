package ffmpeg

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DecodeOptions selects what a Decoder produces.
type DecodeOptions struct {
	Start time.Duration
	// Realtime paces output to the source frame rate, like playback.
	Realtime bool
	// Frames limits the number of decoded frames; 0 decodes to the end.
	Frames int
	Width  int
	Height int
}

// Decoder streams RGBA frames out of an ffmpeg process.
type Decoder struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *bytes.Buffer
	frameSize int
	width     int
	height    int

	closeOnce sync.Once
	err       error
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func decodeStream(inputPath string, opts DecodeOptions) *ffmpeg.Stream {
	inputKwargs := ffmpeg.KwArgs{}
	if opts.Start > 0 {
		inputKwargs["ss"] = seconds(opts.Start)
	}
	if opts.Realtime {
		inputKwargs["re"] = ""
	}

	outputKwargs := ffmpeg.KwArgs{
		"format":   "rawvideo",
		"pix_fmt":  "rgba",
		"s":        fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"an":       "",
		"loglevel": "error",
	}
	if opts.Frames > 0 {
		outputKwargs["frames:v"] = opts.Frames
	}

	return ffmpeg.Input(inputPath, inputKwargs).Output("pipe:", outputKwargs)
}

// StartDecoder launches ffmpeg decoding inputPath from opts.Start.
func (p *Processor) StartDecoder(inputPath string, opts DecodeOptions) (*Decoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("invalid decode size %dx%d", opts.Width, opts.Height)
	}

	stderr := &bytes.Buffer{}
	cmd := decodeStream(inputPath, opts).WithErrorOutput(stderr).Compile()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	p.logger.Debug("starting decoder", slog.String("cmd", cmd.String()))
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start ffmpeg decoder")
	}

	return &Decoder{
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		frameSize: opts.Width * opts.Height * 4,
		width:     opts.Width,
		height:    opts.Height,
	}, nil
}

// ReadFrame fills dst with the next frame. dst must be Width x Height. It
// returns io.EOF after the last frame.
func (d *Decoder) ReadFrame(dst *image.RGBA) error {
	if dst.Rect.Dx() != d.width || dst.Rect.Dy() != d.height || dst.Stride != d.width*4 {
		return errors.Errorf("frame buffer is %v, decoder produces %dx%d", dst.Rect, d.width, d.height)
	}
	_, err := io.ReadFull(d.stdout, dst.Pix[:d.frameSize])
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Close stops the process. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		killed := d.cmd.Process != nil && d.cmd.Process.Kill() == nil
		_ = d.stdout.Close()
		if err := d.cmd.Wait(); err != nil && !killed {
			d.err = errors.Wrapf(err, "ffmpeg decoder: %s", lastLine(d.stderr.String()))
		}
	})
	return d.err
}

// lastLine keeps error messages readable when ffmpeg dumps its banner.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
