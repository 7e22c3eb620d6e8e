package discord

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	maxBytes   = frameSize * channels * 2
	// bytesPerSample covers one stereo s16le sample.
	bytesPerSample = channels * 2
)

// pcmStreamer exposes interleaved s16le stereo PCM as a beep.Streamer.
type pcmStreamer struct {
	r   io.Reader
	buf []byte
	err error
}

func newPCMStreamer(r io.Reader) *pcmStreamer {
	return &pcmStreamer{r: r}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.err != nil {
		return 0, false
	}

	need := len(samples) * bytesPerSample
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == io.EOF:
		return 0, false
	case err == io.ErrUnexpectedEOF:
	case err != nil:
		s.err = err
	}

	count := n / bytesPerSample
	for i := 0; i < count; i++ {
		off := i * bytesPerSample
		samples[i][0] = float64(int16(binary.LittleEndian.Uint16(buf[off:]))) / 32768
		samples[i][1] = float64(int16(binary.LittleEndian.Uint16(buf[off+2:]))) / 32768
	}
	return count, count > 0
}

func (s *pcmStreamer) Err() error {
	return s.err
}

// withGain attenuates or amplifies src by the linear factor gain.
func withGain(src beep.Streamer, gain float64) beep.Streamer {
	return &effects.Volume{
		Streamer: src,
		Base:     2,
		Volume:   math.Log2(gain),
		Silent:   gain <= 0,
	}
}

// frameReader pulls fixed-size interleaved int16 frames out of a streamer.
type frameReader struct {
	src     beep.Streamer
	samples [][2]float64
	frame   []int16
}

func newFrameReader(src beep.Streamer) *frameReader {
	return &frameReader{
		src:     src,
		samples: make([][2]float64, frameSize),
		frame:   make([]int16, frameSize*channels),
	}
}

// Next returns the next 20ms frame. A short final frame is padded with
// silence. ok is false once the source is drained.
func (f *frameReader) Next() ([]int16, bool) {
	filled := 0
	for filled < frameSize {
		n, ok := f.src.Stream(f.samples[filled:])
		filled += n
		if !ok {
			break
		}
	}
	if filled == 0 {
		return nil, false
	}

	for i := 0; i < frameSize; i++ {
		if i >= filled {
			f.frame[2*i], f.frame[2*i+1] = 0, 0
			continue
		}
		f.frame[2*i] = toInt16(f.samples[i][0])
		f.frame[2*i+1] = toInt16(f.samples[i][1])
	}
	return f.frame, true
}

func toInt16(v float64) int16 {
	v *= 32768
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}
