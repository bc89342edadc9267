package notify

import (
	"encoding/binary"
	"errors"
	"testing"
)

// fakePlayer counts calls and returns configurable errors.
type fakePlayer struct {
	primeErr error
	playErr  error
	primes   int
	plays    int
}

func (f *fakePlayer) Prime() error {
	f.primes++
	return f.primeErr
}

func (f *fakePlayer) Play() error {
	f.plays++
	return f.playErr
}

func TestPlayBeforeUnlockUsesFallback(t *testing.T) {
	primary := &fakePlayer{}
	fallback := &fakePlayer{}
	c := NewController(primary, fallback, nil)

	c.Play()

	if primary.plays != 0 {
		t.Error("primary played while locked")
	}
	if fallback.plays != 1 {
		t.Errorf("fallback plays = %d, want 1", fallback.plays)
	}
}

func TestUnlockIsOneTime(t *testing.T) {
	primary := &fakePlayer{}
	c := NewController(primary, &fakePlayer{}, nil)

	c.Unlock()
	c.Unlock()
	c.Unlock()

	if primary.primes != 1 {
		t.Errorf("primes = %d, want 1 (listener self-removes)", primary.primes)
	}
	if !c.Unlocked() {
		t.Error("controller not unlocked after successful prime")
	}
}

func TestUnlockedPlayUsesPrimary(t *testing.T) {
	primary := &fakePlayer{}
	fallback := &fakePlayer{}
	c := NewController(primary, fallback, nil)

	c.Unlock()
	c.Play()

	if primary.plays != 1 || fallback.plays != 0 {
		t.Errorf("plays = primary %d / fallback %d, want 1/0", primary.plays, fallback.plays)
	}
}

func TestPrimaryFailureFallsBack(t *testing.T) {
	primary := &fakePlayer{playErr: errors.New("device busy")}
	fallback := &fakePlayer{}
	c := NewController(primary, fallback, nil)

	c.Unlock()
	c.Play()

	if fallback.plays != 1 {
		t.Errorf("fallback plays = %d, want 1 after primary failure", fallback.plays)
	}
}

func TestPrimeFailureLeavesLocked(t *testing.T) {
	primary := &fakePlayer{primeErr: errors.New("no asset")}
	fallback := &fakePlayer{}
	c := NewController(primary, fallback, nil)

	c.Unlock()
	if c.Unlocked() {
		t.Error("unlocked despite failed prime")
	}

	c.Play()
	if primary.plays != 0 || fallback.plays != 1 {
		t.Errorf("plays = primary %d / fallback %d, want 0/1", primary.plays, fallback.plays)
	}
}

func TestFallbackFailureSwallowed(t *testing.T) {
	c := NewController(nil, &fakePlayer{playErr: errors.New("no sink")}, nil)
	c.Play() // must not panic or surface anything
}

func TestNilPrimaryAlwaysFallback(t *testing.T) {
	fallback := &fakePlayer{}
	c := NewController(nil, fallback, nil)

	c.Unlock()
	c.Play()

	if c.Unlocked() {
		t.Error("unlocked with no primary asset")
	}
	if fallback.plays != 1 {
		t.Errorf("fallback plays = %d, want 1", fallback.plays)
	}
}

func TestSineWAVShape(t *testing.T) {
	data := SineWAV(880, 0.1, 44100)

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	samples := 4410
	if len(data) != 44+2*samples {
		t.Errorf("len = %d, want %d", len(data), 44+2*samples)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 44100 {
		t.Errorf("sample rate = %d", rate)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("bit depth = %d", bits)
	}
	// Fade-in: the first sample is silent.
	if first := int16(binary.LittleEndian.Uint16(data[44:46])); first != 0 {
		t.Errorf("first sample = %d, want 0", first)
	}
}

func TestNewExecPlayerRequiresCommandAndFile(t *testing.T) {
	if NewExecPlayer("", "cue.ogg") != nil {
		t.Error("player created without command")
	}
	if NewExecPlayer("paplay", "") != nil {
		t.Error("player created without asset")
	}
	if NewExecPlayer("paplay", "cue.ogg") == nil {
		t.Error("player not created with both set")
	}
}
