package server

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/moyu/internal/presence"
)

// Source is the published worker state. *presence.Worker implements it.
type Source interface {
	Latest() (*gocv.Mat, bool)
	// Meta returns the published record without the frame.
	Meta() (presence.Snapshot, bool)
}

// Status is the consumer-side state shown next to the preview.
type Status struct {
	AlertsEnabled  bool
	Message        string
	MessageVisible bool
	LastAlert      time.Time
}

// Control is implemented by the consumer that owns the alert trigger.
type Control interface {
	Status() Status
	AlertsEnabled() bool
	SetAlertsEnabled(enabled bool)
}

// State is the JSON body of /api/state and of every websocket push.
type State struct {
	Ready          bool        `json:"ready"`
	Present        bool        `json:"present"`
	Faces          int         `json:"faces"`
	Detections     []Detection `json:"detections"`
	Brightness     float64     `json:"brightness"`
	Seq            uint64      `json:"seq"`
	Time           string      `json:"time,omitempty"`
	AlertsEnabled  bool        `json:"alerts_enabled"`
	Message        string      `json:"message,omitempty"`
	MessageVisible bool        `json:"message_visible"`
	LastAlert      string      `json:"last_alert,omitempty"`
}

// Detection is one accepted face in pixel coordinates.
type Detection struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float64 `json:"score"`
}

// State assembles the current state. Ready is false before the first cycle.
func (s *Server) State() State {
	st := State{Detections: []Detection{}}

	if s.config.Source != nil {
		snap, ok := s.config.Source.Meta()
		if ok {
			st.Ready = true
			st.Present = snap.Present
			st.Faces = len(snap.Detections)
			st.Brightness = snap.Brightness
			st.Seq = snap.Seq
			st.Time = snap.Time.Format(time.RFC3339Nano)
			for _, d := range snap.Detections {
				st.Detections = append(st.Detections, Detection{
					X: d.X, Y: d.Y, Width: d.Width, Height: d.Height, Score: d.Score,
				})
			}
		}
	}

	if s.config.Control != nil {
		status := s.config.Control.Status()
		st.AlertsEnabled = status.AlertsEnabled
		st.Message = status.Message
		st.MessageVisible = status.MessageVisible
		if !status.LastAlert.IsZero() {
			st.LastAlert = status.LastAlert.Format(time.RFC3339Nano)
		}
	}

	return st
}
