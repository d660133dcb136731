package ffmpeg

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// RecordOptions describes one encode of a captured stream.
type RecordOptions struct {
	Width       int
	Height      int
	FPS         int
	AudioPath   string
	AudioOffset time.Duration
	Profile     platform.Profile
	Preset      string
}

// recordStream builds the encoder graph: raw RGBA frames on stdin plus the
// source file's audio, muxed into the profile's container on stdout.
func recordStream(opts RecordOptions) *ffmpeg.Stream {
	settings := GetCodecSettings(opts.Profile.GetOutputFormat())

	video := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"framerate": opts.FPS,
	}).Video()
	streams := []*ffmpeg.Stream{video}

	outputKwargs := ffmpeg.KwArgs{
		"format":   settings.ContainerFormat,
		"c:v":      codecOr(opts.Profile.GetVideoCodec(), settings.VideoCodec),
		"b:v":      opts.Profile.GetVideoBitrate(),
		"crf":      settings.DefaultCRF,
		"pix_fmt":  "yuv420p",
		"threads":  GetOptimalThreadCount(),
		"g":        opts.FPS * 2,
		"loglevel": "error",
	}
	preset := opts.Preset
	if preset == "" {
		preset = PresetRealtime
	}
	for k, v := range settings.EncoderPresets[preset] {
		outputKwargs[k] = v
	}

	if opts.AudioPath != "" {
		audioKwargs := ffmpeg.KwArgs{}
		if opts.AudioOffset > 0 {
			audioKwargs["ss"] = seconds(opts.AudioOffset)
		}
		streams = append(streams, ffmpeg.Input(opts.AudioPath, audioKwargs).Audio())
		outputKwargs["c:a"] = codecOr(opts.Profile.GetAudioCodec(), settings.AudioCodec)
		outputKwargs["b:a"] = opts.Profile.GetAudioBitrate()
		outputKwargs["shortest"] = ""
	}

	return ffmpeg.Output(streams, "pipe:", outputKwargs)
}

// codecOr prefers the profile's codec and falls back to the container
// default.
func codecOr(profile, container string) string {
	if profile != "" {
		return profile
	}
	return container
}

// chunkBuffer collects encoder output between flushes.
type chunkBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	total int64
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += int64(len(p))
	return b.buf.Write(p)
}

// Take returns everything written since the last Take.
func (b *chunkBuffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	b.buf.Reset()
	return out
}

func (b *chunkBuffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

type recorderState int

const (
	recorderIdle recorderState = iota
	recorderRecording
	recorderStopping
	recorderStopped
)

// Recorder encodes a surface video track and an optional file audio track
// with ffmpeg. Every callback runs on the scheduler's loop.
type Recorder struct {
	logger  *slog.Logger
	video   *capture.VideoTrack
	audio   *capture.AudioTrack
	profile platform.Profile
	preset  string
	sched   eventloop.Scheduler

	onData func(capture.Chunk)
	onStop func()

	out    chunkBuffer
	stderr chunkBuffer
	flush  eventloop.Timer
	seq    int
	state  recorderState
	err    error
}

// RecorderOption tunes a Recorder.
type RecorderOption func(*Recorder)

// WithPreset selects an encoder preset; unknown names fall back to realtime.
func WithPreset(name string) RecorderOption {
	return func(r *Recorder) {
		if name != "" {
			r.preset = name
		}
	}
}

// NewRecorder validates stream for encoding with profile.
func (p *Processor) NewRecorder(stream *capture.Stream, profile platform.Profile, sched eventloop.Scheduler, opts ...RecorderOption) (*Recorder, error) {
	if profile == nil {
		return nil, errors.New("recorder needs an output profile")
	}
	videos := stream.VideoTracks()
	if len(videos) != 1 {
		return nil, errors.Errorf("recorder needs exactly one video track, got %d", len(videos))
	}
	video, ok := videos[0].(*capture.VideoTrack)
	if !ok {
		return nil, errors.Errorf("unsupported video track %T", videos[0])
	}

	r := &Recorder{
		logger:  p.logger,
		video:   video,
		profile: profile,
		preset:  PresetRealtime,
		sched:   sched,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !HasPreset(profile.GetOutputFormat(), r.preset) {
		p.logger.Warn("unknown encoder preset, using realtime", slog.String("preset", r.preset))
		r.preset = PresetRealtime
	}
	for _, t := range stream.AudioTracks() {
		if a, ok := t.(*capture.AudioTrack); ok {
			r.audio = a
			break
		}
	}
	return r, nil
}

func (r *Recorder) OnData(fn func(capture.Chunk)) { r.onData = fn }
func (r *Recorder) OnStop(fn func())              { r.onStop = fn }
func (r *Recorder) MimeType() string              { return r.profile.GetMimeType() }

// Err is the encoder's exit error, if any, once stopped.
func (r *Recorder) Err() error { return r.err }

// BytesWritten is the encoded size so far.
func (r *Recorder) BytesWritten() int64 { return r.out.Total() }

func (r *Recorder) options() RecordOptions {
	w, h := r.video.Size()
	opts := RecordOptions{
		Width:   w,
		Height:  h,
		FPS:     r.video.FPS(),
		Profile: r.profile,
		Preset:  r.preset,
	}
	if r.audio != nil {
		opts.AudioPath = r.audio.Path
		opts.AudioOffset = r.audio.Offset
	}
	return opts
}

// Start launches ffmpeg and begins sampling the video track. Call on the
// loop.
func (r *Recorder) Start(timeslice time.Duration) error {
	if r.state != recorderIdle {
		return errors.New("recorder already started")
	}
	if timeslice <= 0 {
		return errors.Errorf("invalid timeslice %s", timeslice)
	}

	cmd := recordStream(r.options()).
		WithOutput(&r.out).
		WithErrorOutput(&r.stderr).
		Compile()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.WithStack(err)
	}
	r.logger.Debug("starting encoder", slog.String("cmd", cmd.String()))
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start ffmpeg encoder")
	}

	r.state = recorderRecording
	written := make(chan struct{})
	go r.writeFrames(stdin, written)
	go r.wait(cmd, written)

	r.video.Start()
	r.flush = r.sched.Every(timeslice, r.flushChunk)
	return nil
}

func (r *Recorder) writeFrames(stdin io.WriteCloser, written chan<- struct{}) {
	defer close(written)
	var werr error
	for f := range r.video.Frames() {
		if werr == nil {
			_, werr = stdin.Write(f.Image.Pix)
		}
		f.Release()
	}
	_ = stdin.Close()
	if werr != nil {
		r.logger.Warn("encoder stopped accepting frames", slog.String("error", werr.Error()))
	}
}

// wait surfaces the encoder's exit. If ffmpeg dies mid-render the video
// track is stopped first so the writer drains instead of feeding a dead pipe.
func (r *Recorder) wait(cmd *exec.Cmd, written <-chan struct{}) {
	err := cmd.Wait()
	r.sched.Post(r.video.Stop)
	<-written
	r.sched.Post(func() { r.finish(err) })
}

func (r *Recorder) flushChunk() {
	r.seq++
	chunk := capture.Chunk{Seq: r.seq, Data: r.out.Take()}
	if r.onData != nil {
		r.onData(chunk)
	}
}

// finish runs on the loop once ffmpeg has exited.
func (r *Recorder) finish(err error) {
	if r.state == recorderStopped {
		return
	}
	if r.flush != nil {
		r.flush.Stop()
	}
	r.flushChunk()

	r.logger.Debug("encoder exited", slog.String("encoded", humanize.Bytes(uint64(r.BytesWritten()))))
	if err != nil {
		stderr := string(r.stderr.Take())
		r.err = errors.Wrapf(err, "ffmpeg encoder: %s", lastLine(stderr))
		r.logger.Error("encoder exited with error",
			slog.String("error", err.Error()),
			slog.String("stderr", lastLine(stderr)),
		)
	}
	r.state = recorderStopped
	if r.onStop != nil {
		r.onStop()
	}
}

// Stop ends the capture; the encoder drains and OnStop fires once it has
// exited. Call on the loop.
func (r *Recorder) Stop() {
	switch r.state {
	case recorderIdle:
		r.state = recorderStopped
		if r.onStop != nil {
			r.sched.Post(r.onStop)
		}
	case recorderRecording:
		r.state = recorderStopping
		r.video.Stop()
	}
}

var _ capture.Recorder = (*Recorder)(nil)
