package audio

import "encoding/binary"

// SpeechRate is the sample rate speech recognisers expect.
const SpeechRate = 16000

// SpeechSamples turns 16-bit PCM in format f into mono float32 samples at
// [SpeechRate], normalised to [-1, 1]. Channels are averaged per frame; a
// trailing partial frame is dropped.
func SpeechSamples(pcm []byte, f Format) []float32 {
	return Resample(Downmix(pcm, f.Channels), f.SampleRate, SpeechRate)
}

// Downmix decodes interleaved little-endian int16 PCM with the given channel
// count into normalised mono samples. channels < 1 is treated as mono.
func Downmix(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frameSize := 2 * channels
	frames := len(pcm) / frameSize
	out := make([]float32, frames)
	for i := range frames {
		frame := pcm[i*frameSize : (i+1)*frameSize]
		var sum int32
		for c := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(frame[c*2:])))
		}
		out[i] = float32(sum) / float32(channels) / 32768
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate by linear
// interpolation. Invalid or equal rates return in unchanged.
func Resample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, n)
	step := float64(srcRate) / float64(dstRate)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
