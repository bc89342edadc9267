package notify

import (
	"encoding/binary"
	"math"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	toneFreq     = 880.0 // Hz
	toneDuration = 0.18  // seconds
	toneRate     = 44100 // samples per second
)

// SineWAV synthesizes a mono 16-bit PCM sine pulse as a complete WAV
// file. A short linear fade at both ends avoids an audible click.
func SineWAV(freq float64, seconds float64, rate int) []byte {
	n := int(float64(rate) * seconds)
	fade := rate / 100 // 10ms
	if fade > n/2 {
		fade = n / 2
	}

	data := make([]byte, 0, 44+2*n)
	data = append(data, []byte("RIFF")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(36+2*n))
	data = append(data, []byte("WAVE")...)
	data = append(data, []byte("fmt ")...)
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint16(data, 1) // PCM
	data = binary.LittleEndian.AppendUint16(data, 1) // mono
	data = binary.LittleEndian.AppendUint32(data, uint32(rate))
	data = binary.LittleEndian.AppendUint32(data, uint32(rate*2))
	data = binary.LittleEndian.AppendUint16(data, 2)
	data = binary.LittleEndian.AppendUint16(data, 16)
	data = append(data, []byte("data")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(2*n))

	for i := 0; i < n; i++ {
		amp := 0.6
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if n-i <= fade {
			amp *= float64(n-i) / float64(fade)
		}
		sample := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		data = binary.LittleEndian.AppendUint16(data, uint16(sample))
	}
	return data
}

// TonePlayer plays the synthesized fallback pulse through an external
// player command. With no command configured Play succeeds without
// sound; the cue is best-effort.
type TonePlayer struct {
	command string
	dir     string
}

// NewTonePlayer creates the fallback player. dir is where the
// generated pulse file lives, typically the state dir.
func NewTonePlayer(command, dir string) *TonePlayer {
	return &TonePlayer{command: command, dir: dir}
}

// Prime is a no-op: the tone needs no unlock handshake.
func (p *TonePlayer) Prime() error { return nil }

// Play synthesizes the pulse on first use and hands it to the player.
func (p *TonePlayer) Play() error {
	if p.command == "" {
		return nil
	}
	path := filepath.Join(p.dir, "cue-tone.wav")
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, SineWAV(toneFreq, toneDuration, toneRate), 0600); err != nil {
			return err
		}
	}
	return exec.Command(p.command, path).Run()
}

// ExecPlayer plays the configured primary audio asset through an
// external player command.
type ExecPlayer struct {
	command string
	file    string
}

// NewExecPlayer creates the primary player, or nil when either the
// command or the asset is unset.
func NewExecPlayer(command, file string) *ExecPlayer {
	if command == "" || file == "" {
		return nil
	}
	return &ExecPlayer{command: command, file: file}
}

// Prime verifies the player and the asset exist without making noise.
func (p *ExecPlayer) Prime() error {
	if _, err := exec.LookPath(p.command); err != nil {
		return err
	}
	_, err := os.Stat(p.file)
	return err
}

// Play plays the asset from the start.
func (p *ExecPlayer) Play() error {
	return exec.Command(p.command, p.file).Run()
}
