package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"time"
)

// Mock synthesizes silent audio for development and dry runs.
type Mock struct {
	SampleRate int
}

var _ Synthesizer = Mock{}

// Synthesize generates a silent WAV sized to the text length.
func (m Mock) Synthesize(_ context.Context, text string) (Audio, error) {
	rate := m.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return Audio{
		Data:        silentWAV(estimateDuration(text), rate),
		ContentType: "audio/wav",
		Extension:   "wav",
	}, nil
}

// estimateDuration assumes roughly twelve characters of narration per second.
func estimateDuration(text string) time.Duration {
	seconds := math.Max(float64(len([]rune(text)))/12.0, 2)
	return time.Duration(seconds * float64(time.Second))
}

func silentWAV(duration time.Duration, sampleRate int) []byte {
	samples := int(math.Ceil(duration.Seconds() * float64(sampleRate)))
	dataSize := samples * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVEfmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
