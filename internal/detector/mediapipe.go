package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// ServiceScript is the file name of the Python MediaPipe face service.
	ServiceScript = "face_service.py"

	startupTimeout = 20 * time.Second
	requestTimeout = 5 * time.Second
	shutdownGrace  = 2 * time.Second
)

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("detector closed")

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Protocol: each request is a 4-byte big-endian length followed by a JPEG
// image; each response is one JSON line with relative face boxes. On startup
// the service prints {"ready": true} once MediaPipe is loaded.
type MediaPipeDetector struct {
	config Config
	python string
	script string

	mu sync.Mutex // serialises requests

	procMu sync.Mutex
	proc   *service
	closed bool
}

// NewMediaPipeDetector starts the MediaPipe service and waits for it to report
// ready, so a missing interpreter or library fails here rather than per frame.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, ServiceScript)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	python := config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	d := &MediaPipeDetector{
		config: config,
		python: python,
		script: script,
	}

	proc, err := startService(python, script, config.MinConfidence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d.proc = proc

	return d, nil
}

// Detect analyzes a frame and returns the detected face candidates.
// If the service died it is restarted on the next call.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	proc, err := d.service()
	if err != nil {
		return nil, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	line, err := proc.roundTrip(buf.GetBytes(), requestTimeout)
	if err != nil {
		d.discard(proc)
		return nil, err
	}

	var response struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("face service: %s", response.Error)
	}

	result := make([]Candidate, len(response.Faces))
	for i, f := range response.Faces {
		result[i] = f.toCandidate()
	}

	return result, nil
}

// Close shuts down the Python process. A Detect blocked on the service is
// unblocked by the shutdown.
func (d *MediaPipeDetector) Close() error {
	d.procMu.Lock()
	d.closed = true
	proc := d.proc
	d.proc = nil
	d.procMu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.stop(shutdownGrace)
}

func (d *MediaPipeDetector) service() (*service, error) {
	d.procMu.Lock()
	defer d.procMu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if d.proc != nil {
		return d.proc, nil
	}

	proc, err := startService(d.python, d.script, d.config.MinConfidence)
	if err != nil {
		return nil, fmt.Errorf("restart face service: %w", err)
	}
	d.proc = proc
	return proc, nil
}

func (d *MediaPipeDetector) discard(proc *service) {
	d.procMu.Lock()
	if d.proc == proc {
		d.proc = nil
	}
	d.procMu.Unlock()
	proc.stop(0)
}

// service is one running instance of the Python face service.
type service struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *bufio.Reader
	stopOnce sync.Once
	stopErr  error
}

func startService(python, script string, minConfidence float64) (*service, error) {
	cmd := exec.Command(python, script, "--min-confidence", strconv.FormatFloat(minConfidence, 'f', -1, 64))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start face service: %w", err)
	}

	s := &service{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	line, err := s.readLine(startupTimeout)
	if err != nil {
		s.stop(0)
		return nil, fmt.Errorf("face service did not start: %w", err)
	}

	var hello struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &hello); err != nil || !hello.Ready {
		s.stop(0)
		if hello.Error != "" {
			return nil, fmt.Errorf("face service: %s", hello.Error)
		}
		return nil, fmt.Errorf("unexpected face service greeting %q", line)
	}

	return s, nil
}

// roundTrip sends one image and returns the JSON response line. The process is
// killed if no answer arrives within timeout.
func (s *service) roundTrip(data []byte, timeout time.Duration) (string, error) {
	timer := time.AfterFunc(timeout, s.kill)
	defer timer.Stop()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := s.stdin.Write(length); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return "", fmt.Errorf("write data: %w", err)
	}

	line, err := s.stdout.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

func (s *service) readLine(timeout time.Duration) (string, error) {
	timer := time.AfterFunc(timeout, s.kill)
	defer timer.Stop()
	return s.stdout.ReadString('\n')
}

func (s *service) kill() {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// stop closes stdin so the service exits on EOF, killing it after grace.
func (s *service) stop(grace time.Duration) error {
	s.stopOnce.Do(func() {
		s.stdin.Close()
		if grace <= 0 {
			s.kill()
		}
		timer := time.AfterFunc(grace, s.kill)
		defer timer.Stop()

		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && grace <= 0 {
			err = nil // killed on purpose
		}
		s.stopErr = err
	})
	return s.stopErr
}

func findServiceScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join("scripts", ServiceScript),
		filepath.Join("..", "scripts", ServiceScript),
		filepath.Join(execDir, "scripts", ServiceScript),
		filepath.Join(home, ".moyu", "scripts", ServiceScript),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)
	home, _ := os.UserHomeDir()

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(home, ".moyu/venv/bin/python"),
		"venv/Scripts/python.exe",
		filepath.Join(execDir, "venv/Scripts/python.exe"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonFace is one face as reported by the Python service, in relative coordinates.
type jsonFace struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Score float64 `json:"score"`
}

func (f jsonFace) toCandidate() Candidate {
	return Candidate{
		Box:   Box{X: f.X, Y: f.Y, Width: f.W, Height: f.H, Relative: true},
		Score: f.Score,
	}
}
