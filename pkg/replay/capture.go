// Package replay drives pre-recorded request payloads against a target,
// reproducing the timing of the original capture or pacing the records at
// a fixed delay.
package replay

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// CaptureVersion is the only capture record version understood.
	CaptureVersion = 1
	// MaxPayloadLength bounds a single captured payload.
	MaxPayloadLength = 1 << 20
)

// CapturedRequest is one record of a capture file: the payload that was
// observed and when it was observed.
type CapturedRequest struct {
	Timestamp time.Time
	Payload   []byte
}

// ReadCapture decodes a stream of capture records.  Each record is a
// 4-byte version (must be 1), an 8-byte capture timestamp in milliseconds
// since the Unix epoch, a 4-byte payload length and the payload itself,
// all big-endian.  A short read mid-record is an error; a clean EOF on a
// record boundary ends the stream.
func ReadCapture(r io.Reader) ([]CapturedRequest, error) {
	var requests []CapturedRequest
	var header [16]byte
	for {
		_, err := io.ReadFull(r, header[:])
		if err == io.EOF {
			return requests, nil
		}
		if err != nil {
			return nil, fmt.Errorf("replay: reading record %d header: %w", len(requests), err)
		}
		version := binary.BigEndian.Uint32(header[0:4])
		if version != CaptureVersion {
			return nil, fmt.Errorf("replay: record %d has unsupported capture version %d", len(requests), version)
		}
		millis := binary.BigEndian.Uint64(header[4:12])
		length := binary.BigEndian.Uint32(header[12:16])
		if length > MaxPayloadLength {
			return nil, fmt.Errorf("replay: record %d payload length %d exceeds %d", len(requests), length, MaxPayloadLength)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("replay: reading record %d payload: %w", len(requests), err)
		}
		requests = append(requests, CapturedRequest{
			Timestamp: time.UnixMilli(int64(millis)),
			Payload:   payload,
		})
	}
}

// ReadCaptureFile reads a whole capture file into memory.
func ReadCaptureFile(path string) ([]CapturedRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	return ReadCapture(f)
}
