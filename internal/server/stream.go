package server

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/moyu/internal/metrics"
)

const (
	streamInterval = 33 * time.Millisecond // ~30 FPS
	streamIdle     = 100 * time.Millisecond
)

// StreamHandler serves the latest annotated frame as MJPEG.
type StreamHandler struct {
	source  Source
	metrics *metrics.Metrics
}

// NewStreamHandler creates a new StreamHandler. m may be nil.
func NewStreamHandler(source Source, m *metrics.Metrics) *StreamHandler {
	return &StreamHandler{source: source, metrics: m}
}

// ServeHTTP streams MJPEG frames until the client goes away. It never reads
// the camera; frames come from the worker's published record.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if h.metrics != nil {
		h.metrics.StreamClients.Add(1)
		defer h.metrics.StreamClients.Add(-1)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame, ok := h.source.Latest()
		if !ok {
			if !wait(r, streamIdle) {
				return
			}
			continue
		}

		// Encode as JPEG
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
		frame.Close()
		if err != nil {
			log.WithError(err).Debug("Failed to encode preview frame")
			if !wait(r, streamIdle) {
				return
			}
			continue
		}

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, err = w.Write(buf.GetBytes())
		buf.Close()
		if err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		if !wait(r, streamInterval) {
			return
		}
	}
}

// wait sleeps for d and reports false if the request ended first.
func wait(r *http.Request, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.Context().Done():
		return false
	case <-t.C:
		return true
	}
}
