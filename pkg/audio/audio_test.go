package audio_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/ensotalk/pkg/audio"
)

func TestLevelDB(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{name: "empty", pcm: nil, want: audio.MinLevelDB},
		{name: "silence", pcm: pcm16(0, 0, 0, 0), want: audio.MinLevelDB},
		{name: "full scale", pcm: pcm16(-32768, -32768), want: 0},
		{name: "half scale", pcm: pcm16(16384, -16384), want: 20 * math.Log10(0.5)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := audio.LevelDB(tc.pcm)
			if math.Abs(got-tc.want) > 0.01 {
				t.Errorf("LevelDB() = %.3f, want %.3f", got, tc.want)
			}
		})
	}
}

func TestRMSToDB_Clamps(t *testing.T) {
	if got := audio.RMSToDB(1e-12); got != audio.MinLevelDB {
		t.Errorf("RMSToDB(1e-12) = %f, want %f", got, audio.MinLevelDB)
	}
	if got := audio.RMSToDB(2); got != 0 {
		t.Errorf("RMSToDB(2) = %f, want 0", got)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := pcm16(1, -1, 300, -300, 32767)
	f := audio.Format{SampleRate: 16000, Channels: 1}

	wav := audio.EncodeWAV(pcm, f)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if c := audio.DetectContainer(wav); c != audio.ContainerWAV {
		t.Errorf("DetectContainer = %q, want %q", c, audio.ContainerWAV)
	}

	gotPCM, gotFmt, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if gotFmt != f {
		t.Errorf("format = %+v, want %+v", gotFmt, f)
	}
	if string(gotPCM) != string(pcm) {
		t.Errorf("pcm mismatch: got %v, want %v", gotPCM, pcm)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	pcm := pcm16(7, 8)
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 8000, Channels: 1})

	// Insert a LIST chunk with an odd payload between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append([]byte{}, wav[:36]...)
	withList = append(withList, list...)
	withList = append(withList, wav[36:]...)

	got, _, err := audio.DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if string(got) != string(pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecodeWAV_RejectsNonWAV(t *testing.T) {
	_, _, err := audio.DecodeWAV([]byte("ID3 not a wave file"))
	if !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestDetectContainer(t *testing.T) {
	tests := []struct {
		data []byte
		want audio.Container
	}{
		{data: []byte("ID3\x04\x00"), want: audio.ContainerMP3},
		{data: []byte{0xFF, 0xFB, 0x90, 0x00}, want: audio.ContainerMP3},
		{data: []byte("OggS\x00\x02"), want: audio.ContainerOGG},
		{data: []byte("hello"), want: audio.ContainerUnknown},
	}
	for _, tc := range tests {
		if got := audio.DetectContainer(tc.data); got != tc.want {
			t.Errorf("DetectContainer(%q) = %q, want %q", tc.data, got, tc.want)
		}
	}
}

func TestFileArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensotalk_test.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	a := audio.NewFileArtifact(path)
	if a.Name() != "ensotalk_test.wav" {
		t.Errorf("Name() = %q, want ensotalk_test.wav", a.Name())
	}
	data, err := a.Bytes()
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("Bytes() = %q, %v", data, err)
	}

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still exists after Release: %v", err)
	}
	if err := a.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if _, err := a.Bytes(); err == nil {
		t.Error("Bytes() after Release: expected error")
	}
}
