package audio

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// FFPlayPlayer pipes PCM16LE audio into an ffplay process. Reset kills and
// restarts the process, discarding anything still buffered, which is how an
// interruption cuts synthesized speech off instantly.
type FFPlayPlayer struct {
	command    string
	sampleRate int
	channels   int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func NewFFPlayPlayer(command string, sampleRate, channels int) (*FFPlayPlayer, error) {
	if command == "" {
		command = "ffplay"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("%s is required for audio playback: %w", command, err)
	}
	p := &FFPlayPlayer{command: command, sampleRate: sampleRate, channels: channels}
	if err := p.startLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FFPlayPlayer) startLocked() error {
	cmd := exec.Command(p.command,
		"-nodisp",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.sampleRate),
		"-ac", strconv.Itoa(p.channels),
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open %s stdin: %w", p.command, err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command, err)
	}
	p.cmd = cmd
	p.stdin = stdin
	return nil
}

func (p *FFPlayPlayer) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("player is not running")
	}
	_, err := p.stdin.Write(pcm)
	return err
}

func (p *FFPlayPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked()
	return p.startLocked()
}

func (p *FFPlayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked()
	return nil
}

func (p *FFPlayPlayer) killLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
}
