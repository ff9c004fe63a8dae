package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// bitsPerSample is fixed at 16; every backend in EnsoTalk records 16-bit
// signed little-endian PCM.
const bitsPerSample = 16

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM data rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bitsPerSample / 8
}

// ErrNotWAV is returned by [DecodeWAV] for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts the PCM payload and format from a 16-bit PCM WAV file.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f      Format
		gotFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streaming writers leave the data size unset; take what is there.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, Format{}, fmt.Errorf("audio: wav fmt chunk too short (%d bytes)", end-body)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav encoding %d", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			if bps := binary.LittleEndian.Uint16(data[body+14:]); bps != bitsPerSample {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav bit depth %d", bps)
			}
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, Format{}, errors.New("audio: wav data chunk before fmt chunk")
			}
			return data[body:end], f, nil
		}

		// Chunks are word aligned.
		pos = end + size%2
	}
	return nil, Format{}, errors.New("audio: wav has no data chunk")
}
