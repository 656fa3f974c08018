package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// LineReader pulls newline-delimited JSON objects from a byte stream.
// Blank lines, lines that are not a JSON object, and a trailing line without a
// terminating newline are dropped.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete JSON object. It returns io.EOF when the
// stream ends cleanly and any other error from the underlying reader as is.
func (lr *LineReader) Next() (json.RawMessage, error) {
	for {
		line, err := lr.r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' || !json.Valid(line) {
			continue
		}
		return json.RawMessage(line), nil
	}
}

// generateChunk is one line of the /api/generate stream.
type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}
