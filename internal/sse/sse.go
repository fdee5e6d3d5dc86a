// Package sse encodes and decodes the "data: <json>\n\n" record stream
// exchanged between the transcription endpoint and its clients.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jo-hoe/khmerscribe/internal/common"
)

const (
	dataPrefix = "data: "

	// Cleaned transcripts of long videos easily exceed bufio's 64KiB default.
	initialBufferSize = 64 * 1024
	maxRecordSize     = 16 * 1024 * 1024
)

// SetHeaders marks a response as an uncached event stream.
func SetHeaders(h http.Header) {
	h.Set(common.HeaderContentType, common.ContentTypeSSE)
	h.Set(common.HeaderCacheControl, common.CacheControlNoCache)
	h.Set(common.HeaderConnection, common.ConnectionKeepAlive)
}

// Writer writes records to an HTTP response and flushes each one.
type Writer struct {
	w   io.Writer
	rc  *http.ResponseController
	err error
}

// NewWriter wraps w. Flushing goes through http.ResponseController, so
// middleware wrappers must implement Unwrap.
func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// WriteEvent encodes v as one record. Once a write fails, every later call
// returns the same error.
func (s *Writer) WriteEvent(v any) error {
	if s.err != nil {
		return s.err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(dataPrefix) + len(payload) + 2)
	buf.WriteString(dataPrefix)
	buf.Write(payload)
	buf.WriteString("\n\n")

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		s.err = fmt.Errorf("write event: %w", err)
		return s.err
	}
	if err := s.rc.Flush(); err != nil {
		s.err = fmt.Errorf("flush event: %w", err)
		return s.err
	}
	return nil
}

// Reader decodes records incrementally as bytes arrive.
type Reader struct {
	sc *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initialBufferSize), maxRecordSize)
	return &Reader{sc: sc}
}

// Next decodes the next data record into v. Lines without the data prefix
// are skipped. It returns io.EOF once the stream ends.
func (r *Reader) Next(v any) error {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		payload, ok := bytes.CutPrefix(line, []byte(dataPrefix))
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, v); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return nil
	}
	if err := r.sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.EOF
}
