package tts

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
)

func TestMockSynthWritesWAV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "poem_0.wav")
	if err := NewMockSynth(16000, 1).SynthesizeToFile(context.Background(), Request{Text: "hi", OutputPath: out}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	assertWAV(t, out, 16000)
}

func TestExecSynthCollectsChunks(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "synth.sh")
	body := "#!/bin/sh\ncat > \"" + filepath.Join(dir, "request.json") + "\"\n" +
		"echo '{\"pcm_base64\":\"AAABAA==\"}'\n" +
		"echo '{\"pcm_base64\":\"AgADAA==\",\"final\":true}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	synth, err := NewExecSynth("sh "+script, 22050, 1)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	out := filepath.Join(dir, "out.wav")
	req := Request{Text: "a joyful verse", SpeakerWAV: "ref.wav", Language: "en", OutputPath: out}
	if err := synth.SynthesizeToFile(context.Background(), req); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	assertWAV(t, out, 22050)

	sent, err := os.ReadFile(filepath.Join(dir, "request.json"))
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if want := `"speaker_wav":"ref.wav"`; !strings.Contains(string(sent), want) {
		t.Fatalf("expected %s in request %s", want, sent)
	}
}

func TestExecSynthFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	synth, err := NewExecSynth("false", 22050, 1)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	if err := synth.SynthesizeToFile(context.Background(), Request{Text: "x", OutputPath: filepath.Join(t.TempDir(), "x.wav")}); err == nil {
		t.Fatal("expected error from failing command")
	}
}

func assertWAV(t *testing.T, path string, sampleRate int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav file")
	}
	if int(dec.SampleRate) != sampleRate {
		t.Fatalf("expected sample rate %d, got %d", sampleRate, dec.SampleRate)
	}
}
