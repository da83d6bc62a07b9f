package usecase

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"interviewcoach/internal/audio"
)

func f32Bytes(samples []float32) []byte {
	out := make([]byte, 0, len(samples)*4)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(s))
	}
	return out
}

func TestPumpEncodesChunksInCaptureOrder(t *testing.T) {
	t.Parallel()

	first := make([]float32, 1024)
	second := make([]float32, 1024)
	for i := range first {
		first[i] = 0.25
		second[i] = -0.5
	}

	mic := newFakeMicSession()
	stream := newFakeStream()
	var open, paused atomic.Bool
	open.Store(true)
	done := make(chan struct{})

	go pumpAudioChunks(mic, stream, &open, &paused, 4096, 16000, done)

	mic.feed(t, f32Bytes(first))
	mic.feed(t, f32Bytes(second))
	_ = mic.Stop()
	<-done

	sent := stream.sentAudio()
	if len(sent) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(sent))
	}
	if sent[0] != audio.EncodeFloat32(first) {
		t.Fatalf("first chunk mismatch")
	}
	if sent[1] != audio.EncodeFloat32(second) {
		t.Fatalf("second chunk mismatch")
	}
	for _, mime := range stream.mimes {
		if mime != audio.MimePCM16K {
			t.Fatalf("unexpected mime: %q", mime)
		}
	}
	if !open.Load() {
		t.Fatalf("clean end of capture must not mark the session broken")
	}
}

func TestPumpLabelsChunksWithConfiguredRate(t *testing.T) {
	t.Parallel()

	mic := newFakeMicSession()
	stream := newFakeStream()
	var open, paused atomic.Bool
	open.Store(true)
	done := make(chan struct{})

	go pumpAudioChunks(mic, stream, &open, &paused, 1024, 48000, done)

	mic.feed(t, f32Bytes(make([]float32, 256)))
	_ = mic.Stop()
	<-done

	if len(stream.mimes) != 1 || stream.mimes[0] != "audio/pcm;rate=48000" {
		t.Fatalf("unexpected mime labels: %#v", stream.mimes)
	}
}

func TestPumpSendsPartialFinalChunk(t *testing.T) {
	t.Parallel()

	tail := []float32{0.1, 0.2, 0.3}

	mic := newFakeMicSession()
	stream := newFakeStream()
	var open, paused atomic.Bool
	open.Store(true)
	done := make(chan struct{})

	go pumpAudioChunks(mic, stream, &open, &paused, 4096, 16000, done)

	mic.feed(t, f32Bytes(tail))
	_ = mic.Stop()
	<-done

	sent := stream.sentAudio()
	if len(sent) != 1 {
		t.Fatalf("expected the short tail to be sent, got %d chunks", len(sent))
	}
	if sent[0] != audio.EncodeFloat32(tail) {
		t.Fatalf("tail chunk mismatch")
	}
	if !open.Load() {
		t.Fatalf("short final read must not mark the session broken")
	}
}

func TestPumpDropsAudioWhilePaused(t *testing.T) {
	t.Parallel()

	mic := newFakeMicSession()
	stream := newFakeStream()
	var open, paused atomic.Bool
	open.Store(true)
	paused.Store(true)
	done := make(chan struct{})

	go pumpAudioChunks(mic, stream, &open, &paused, 1024, 16000, done)

	mic.feed(t, f32Bytes(make([]float32, 512)))
	_ = mic.Stop()
	<-done

	if got := stream.audioCount(); got != 0 {
		t.Fatalf("expected no sends while paused, got %d", got)
	}
}

func TestPumpSendFailureEndsQuietly(t *testing.T) {
	t.Parallel()

	mic := newFakeMicSession()
	stream := newFakeStream()
	stream.sendErr = errors.New("connection reset")
	var open, paused atomic.Bool
	open.Store(true)
	done := make(chan struct{})

	go pumpAudioChunks(mic, stream, &open, &paused, 1024, 16000, done)

	mic.feed(t, f32Bytes(make([]float32, 256)))
	<-done

	if open.Load() {
		t.Fatalf("send failure must flip the open flag")
	}
	_ = mic.Stop()
}

type errSession struct {
	err error
}

func (s *errSession) Read([]byte) (int, error) { return 0, s.err }
func (s *errSession) Close() error             { return nil }
func (s *errSession) Stop() error              { return nil }

func TestPumpCaptureFailureFlipsOpen(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	var open, paused atomic.Bool
	open.Store(true)
	done := make(chan struct{})

	go pumpAudioChunks(&errSession{err: errors.New("device wedged")}, stream, &open, &paused, 1024, 16000, done)
	<-done

	if open.Load() {
		t.Fatalf("capture failure must flip the open flag")
	}
}
