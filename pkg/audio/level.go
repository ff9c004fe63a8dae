package audio

import (
	"encoding/binary"
	"math"
)

// LevelDB returns the RMS level of 16-bit little-endian PCM in dBFS. Empty or
// all-zero input yields [MinLevelDB]. A trailing odd byte is ignored.
func LevelDB(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return MinLevelDB
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	return RMSToDB(rms)
}

// RMSToDB converts a normalised RMS amplitude (0..1) to dBFS, clamped to
// [MinLevelDB, 0].
func RMSToDB(rms float64) float64 {
	if rms <= 0 {
		return MinLevelDB
	}
	db := 20 * math.Log10(rms)
	switch {
	case db < MinLevelDB:
		return MinLevelDB
	case db > 0:
		return 0
	}
	return db
}
