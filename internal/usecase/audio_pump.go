package usecase

import (
	"errors"
	"io"
	"sync/atomic"

	"interviewcoach/internal/audio"
	"interviewcoach/internal/ports"
)

// pumpAudioChunks reads float32 microphone samples, encodes them to base64
// PCM16LE, and sends them in capture order. Every send is guarded by the
// open flag; a send failure after the remote closed flips the flag and ends
// the pump quietly rather than surfacing an error for a session that is
// already gone.
func pumpAudioChunks(
	mic ports.AudioSession,
	stream ports.RealtimeSession,
	open *atomic.Bool,
	paused *atomic.Bool,
	chunkSize int,
	sampleRate int,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}
	// float32 capture frames are 4 bytes each.
	chunkSize -= chunkSize % 4

	mime := audio.MimePCM(sampleRate)
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(mic, buf)
		if n > 0 && !paused.Load() {
			if open.Load() {
				samples := audio.Float32FromLE(buf[:n-n%4])
				if sendErr := stream.SendAudio(audio.EncodeFloat32(samples), mime); sendErr != nil {
					open.Store(false)
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				open.Store(false)
			}
			return
		}
	}
}
