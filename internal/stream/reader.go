package stream

import (
	"bufio"
	"bytes"
	"io"
)

const dataPrefix = "data: "

// Reader yields the payloads of `data: ` lines from an SSE byte stream.
// Lines are not length limited; a multi-megabyte frame is read whole.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a new SSE reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the payload of the next non-empty `data: ` line. Lines
// without the exact prefix are ignored. Returns nil, io.EOF when done.
// An unterminated final fragment is dropped.
func (r *Reader) Next() ([]byte, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})
		payload, ok := bytes.CutPrefix(line, []byte(dataPrefix))
		if !ok || len(payload) == 0 {
			continue
		}
		return payload, nil
	}
}
