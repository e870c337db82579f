package tee

import (
	"bytes"
	"net/http"
)

// ResponseSaver is a wrapper around http.ResponseWriter that saves the response to a buffer.
// It optionally writes the response to the underlying http.ResponseWriter.
//
// The handler writes its headers into the saver's own header map. They are copied to the
// underlying writer when the status is written, right after OnWriteHeader had a chance
// to look at (and change) them.
type ResponseSaver struct {
	rw           http.ResponseWriter
	b            *bytes.Buffer
	header       http.Header
	status       int
	wroteHeaders bool
	overflow     bool
	failed       bool

	// OnWriteHeader is called once, before the status and headers are sent.
	// Changes it makes to the header are part of the response.
	OnWriteHeader func(status int, header http.Header)
	// MaxBytes limits the saved body. Larger bodies are still written through
	// but not kept. Zero means no limit.
	MaxBytes int
	// Discard disables saving the body altogether.
	Discard bool
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	// informational responses are passed along but do not count as the final status
	if statusCode >= 100 && statusCode < 200 && statusCode != http.StatusSwitchingProtocols {
		if t.rw != nil {
			copyHeader(t.rw.Header(), t.header)
			t.rw.WriteHeader(statusCode)
		}
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	if t.OnWriteHeader != nil {
		t.OnWriteHeader(statusCode, t.header)
	}
	// write to underlying http.ResponseWriter if not nil
	if t.rw != nil {
		copyHeader(t.rw.Header(), t.header)
		t.rw.WriteHeader(statusCode)
	}
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		// net/http sniffs the type of untyped bodies, so the hook gets to see it too
		if _, ok := t.header["Content-Type"]; !ok && len(b) > 0 && t.header.Get("Transfer-Encoding") == "" {
			t.header.Set("Content-Type", http.DetectContentType(b))
		}
		t.WriteHeader(http.StatusOK)
	}
	t.save(b)
	// write to underlying http.ResponseWriter if not nil
	if t.rw != nil {
		n, err := t.rw.Write(b)
		if err != nil {
			// the client got a partial body, so does the buffer
			t.failed = true
		}
		return n, err
	}
	return len(b), nil
}

func (t *ResponseSaver) save(b []byte) {
	if t.Discard || t.overflow {
		return
	}
	if t.MaxBytes > 0 && t.b.Len()+len(b) > t.MaxBytes {
		t.overflow = true
		t.b = &bytes.Buffer{}
		return
	}
	t.b.Write(b)
}

// Flush implements http.Flusher.
func (t *ResponseSaver) Flush() {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	if f, ok := t.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying writer, for http.ResponseController.
func (t *ResponseSaver) Unwrap() http.ResponseWriter {
	return t.rw
}

// Finish completes the response the way net/http would if the handler returned
// without writing anything: with a 200 and the headers set so far.
func (t *ResponseSaver) Finish() {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
}

// Response returns the recorded body as a byte slice.
func (t *ResponseSaver) Response() []byte {
	return t.b.Bytes()
}

// Complete reports whether the whole body was saved and delivered.
func (t *ResponseSaver) Complete() bool {
	return t.wroteHeaders && !t.overflow && !t.failed && !t.Discard
}

// StatusCode returns the status code of the response.
// It is zero until the status has been written.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}

// NewResponseSaver returns a new ResponseSaver.
// If w is not nil, the response will be written (tee'd) to it in addition to saving to buffer.
func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{
		rw:     w,
		b:      &bytes.Buffer{},
		header: http.Header{},
	}
}

// copyHeader replaces the values in dst with the ones in src, key by key.
// Keys only present in dst are kept.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
}
