package httpcache

import (
	"bytes"
	"net/http"
)

// recorder buffers a handler's response so it can be hashed, stored, or
// withheld before anything reaches the client.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) ok() bool {
	s := r.statusCode()
	return s >= 200 && s <= 299
}

// flush copies the recorded response to w. Headers already present on w win.
func (r *recorder) flush(w http.ResponseWriter) {
	copyHeader(w.Header(), r.header)
	w.WriteHeader(r.statusCode())
	_, _ = w.Write(r.body.Bytes())
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		if _, exists := dst[k]; exists {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}
