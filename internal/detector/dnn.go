package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Input geometry and mean of the res10 SSD face model.
const (
	dnnInputSize = 300
)

var dnnMean = gocv.NewScalar(104, 177, 123, 0)

// DNNDetector implements Detector with the OpenCV DNN module and a
// single-shot face model such as res10_300x300_ssd.
type DNNDetector struct {
	mu            sync.Mutex
	net           gocv.Net
	minConfidence float32
	closed        bool
}

// NewDNNDetector loads the model named by config.ModelPath and config.ConfigPath.
func NewDNNDetector(config Config) (*DNNDetector, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("%w: detector.model_path is not set", ErrUnavailable)
	}
	for _, path := range []string{config.ModelPath, config.ConfigPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: could not load model %s", ErrUnavailable, config.ModelPath)
	}

	log.WithField("model", config.ModelPath).Info("DNN face model loaded")

	return &DNNDetector{
		net:           net,
		minConfidence: float32(config.MinConfidence),
	}, nil
}

// Detect runs one forward pass. Boxes are returned in relative coordinates.
// Rows below half the configured confidence are dropped here; the final
// threshold is applied by the caller.
func (d *DNNDetector) Detect(frame *gocv.Mat) ([]Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	blob := gocv.BlobFromImage(*frame, 1.0, image.Pt(dnnInputSize, dnnInputSize), dnnMean, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	// 1x1xNx7 blob; each row is [image, class, confidence, x1, y1, x2, y2].
	detections := gocv.GetBlobChannel(prob, 0, 0)
	defer detections.Close()

	floor := d.minConfidence / 2
	var result []Candidate
	for r := 0; r < detections.Rows(); r++ {
		confidence := detections.GetFloatAt(r, 2)
		if confidence < floor {
			continue
		}
		x1 := float64(detections.GetFloatAt(r, 3))
		y1 := float64(detections.GetFloatAt(r, 4))
		x2 := float64(detections.GetFloatAt(r, 5))
		y2 := float64(detections.GetFloatAt(r, 6))

		result = append(result, Candidate{
			Box: Box{
				X:        x1,
				Y:        y1,
				Width:    x2 - x1,
				Height:   y2 - y1,
				Relative: true,
			},
			Score: float64(confidence),
		})
	}

	return result, nil
}

// Close releases the network. Calling it more than once is safe.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}
