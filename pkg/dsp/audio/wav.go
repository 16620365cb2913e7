package audio

import (
	"encoding/binary"
	"io"
)

// streamingSize marks RIFF and data chunk sizes as unknown.
const streamingSize = 0xFFFFFFFF

type wavHeader struct {
	ChunkID   [4]byte
	ChunkSize uint32
	Format    [4]byte

	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16

	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteStreamingWAVHeader writes a 44 byte WAV header for unbounded mono
// PCM16 at OutputRate.
func WriteStreamingWAVHeader(w io.Writer) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     streamingSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    OutputRate,
		ByteRate:      OutputRate * channels * bitsPerSample / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: streamingSize,
	}
	return binary.Write(w, binary.LittleEndian, &header)
}
