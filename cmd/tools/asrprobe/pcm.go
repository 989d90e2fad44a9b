package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// decodePCM returns raw 16-bit little-endian samples. WAV input is unwrapped
// and its sample rate wins over fallbackRate; anything else is treated as raw PCM.
func decodePCM(data []byte, fallbackRate int) ([]byte, int, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		if len(data)%2 != 0 {
			return nil, 0, fmt.Errorf("raw pcm must contain whole 16-bit samples")
		}
		return data, fallbackRate, nil
	}

	var (
		sampleRate int
		pcm        []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("wav fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("wav must be 16-bit mono pcm (format=%d channels=%d bits=%d)", format, channels, bits)
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
		case "data":
			pcm = data[body : body+size]
		}

		// chunks are word aligned
		off = body + size + size%2
	}

	if sampleRate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("wav is missing fmt or data chunk")
	}
	return pcm, sampleRate, nil
}

func splitFrames(pcm []byte, frameSamples int) [][]byte {
	size := frameSamples * 2
	frames := make([][]byte, 0, len(pcm)/size+1)
	for start := 0; start < len(pcm); start += size {
		end := start + size
		if end > len(pcm) {
			end = len(pcm)
		}
		frames = append(frames, pcm[start:end])
	}
	return frames
}
