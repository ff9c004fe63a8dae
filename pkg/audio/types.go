package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Artifact is an opaque handle to captured or synthesized audio. Its owner
// must call Release exactly once when done.
type Artifact interface {
	// Name is a file name for the audio including its extension
	// (e.g. "ensotalk_<uuid>.wav"). Transcription services use the extension
	// to detect the container format.
	Name() string

	// Bytes returns the encoded audio.
	Bytes() ([]byte, error)

	// Release deletes the underlying audio.
	Release() error
}

// FileArtifact is an [Artifact] stored in a file on disk.
type FileArtifact struct {
	// Path is the absolute path of the audio file.
	Path string

	once sync.Once
	err  error
}

// Ensure FileArtifact implements Artifact at compile time.
var _ Artifact = (*FileArtifact)(nil)

// NewFileArtifact returns an [Artifact] for the file at path.
func NewFileArtifact(path string) *FileArtifact {
	return &FileArtifact{Path: path}
}

// Name implements [Artifact].
func (a *FileArtifact) Name() string { return filepath.Base(a.Path) }

// Bytes implements [Artifact].
func (a *FileArtifact) Bytes() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("audio: read artifact: %w", err)
	}
	return data, nil
}

// Release implements [Artifact]. The file is removed on the first call;
// later calls return the first call's result. A file that is already gone is
// not an error.
func (a *FileArtifact) Release() error {
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.err = fmt.Errorf("audio: release artifact: %w", err)
		}
	})
	return a.err
}

// Container identifies an encoded audio format.
type Container string

const (
	ContainerWAV     Container = "wav"
	ContainerMP3     Container = "mp3"
	ContainerOGG     Container = "ogg"
	ContainerUnknown Container = ""
)

// DetectContainer sniffs the container format from the first bytes of data.
func DetectContainer(data []byte) Container {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContainerWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return ContainerOGG
	default:
		return ContainerUnknown
	}
}
