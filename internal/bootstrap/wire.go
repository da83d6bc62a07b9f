package bootstrap

import (
	"log/slog"
	"time"

	"interviewcoach/internal/audio"
	"interviewcoach/internal/config"
	"interviewcoach/internal/ports"
	"interviewcoach/internal/prompt"
	"interviewcoach/internal/providers/gemini"
	"interviewcoach/internal/usecase"
	"interviewcoach/internal/video"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard, log *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	prompts, err := prompt.NewBuilder(cfg.Prompt.InterviewerTemplatePath, cfg.Prompt.FeedbackTemplatePath)
	if err != nil {
		return Services{}, err
	}

	newPlayback := func(onSpeaking func(bool), onError func(error)) (usecase.Playback, error) {
		player, err := audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand, cfg.Audio.PlaybackSampleRate, cfg.Audio.Channels)
		if err != nil {
			return nil, err
		}
		return &playbackPipeline{
			sched:  audio.NewScheduler(player, onSpeaking, onError),
			player: player,
		}, nil
	}

	controller := usecase.NewSessionController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		video.NewFFMPEGFrames(cfg.Audio.RecorderCommand),
		gemini.NewLiveProvider(gemini.Config{
			Endpoint:  cfg.Gemini.Endpoint,
			LiveModel: cfg.Gemini.LiveModel,
		}),
		gemini.NewFeedbackProvider(cfg.Gemini.FeedbackModel),
		prompts,
		newPlayback,
		clipboard,
		eventSink,
		log,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.CaptureSampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Video: ports.VideoConfig{
				InputFormat: cfg.Video.InputFormat,
				InputDevice: cfg.Video.InputDevice,
				Width:       cfg.Video.Width,
				Quality:     cfg.Video.Quality,
				FrameRate:   captureFrameRate(cfg.Session.FrameTick),
			},
			VideoEnabled:         cfg.Video.Enabled,
			Voice:                cfg.Gemini.Voice,
			APIKey:               cfg.Gemini.APIKey,
			PlaybackSampleRate:   cfg.Audio.PlaybackSampleRate,
			ChunkSize:            cfg.Session.ChunkSize,
			FrameTick:            cfg.Session.FrameTick,
			RetainEvery:          cfg.Session.RetainEvery,
			FrameBufferSize:      cfg.Session.FrameBufferSize,
			InterimFlush:         cfg.Session.InterimFlush,
			ClassifyConnectError: gemini.Classify,
		},
	)

	return Services{Controller: controller, Config: cfg}, nil
}

// captureFrameRate converts the sampling tick into a whole frames-per-second
// value for the recorder. Ticks longer than a second still need one frame per
// second so the sampler has frames to pick from.
func captureFrameRate(tick time.Duration) int {
	if tick <= 0 {
		return 1
	}
	rate := int(time.Second / tick)
	if rate < 1 {
		return 1
	}
	return rate
}

type playbackPipeline struct {
	sched  *audio.Scheduler
	player *audio.FFPlayPlayer
}

func (p *playbackPipeline) Enqueue(buf *audio.Buffer) (time.Time, error) {
	return p.sched.Enqueue(buf)
}

func (p *playbackPipeline) Interrupt() {
	p.sched.Interrupt()
}

func (p *playbackPipeline) Close() error {
	p.sched.Interrupt()
	return p.player.Close()
}
