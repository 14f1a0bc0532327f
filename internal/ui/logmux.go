package ui

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// DefaultLogLines is how many output lines are kept per service.
const DefaultLogLines = 1000

// LogSink receives complete, timestamped output lines.
type LogSink interface {
	SendLog(service, line string)
}

// LogMultiplexer keeps the recent output of each managed server and forwards
// new lines to the dashboard.
type LogMultiplexer struct {
	mu         sync.RWMutex
	buffers    map[string]*LogBuffer
	writers    map[string]*ServiceWriter
	sink       LogSink
	maxLines   int
	timeFormat string
	now        func() time.Time
}

// NewLogMultiplexer creates a multiplexer with a buffer per service.
func NewLogMultiplexer(services []string) *LogMultiplexer {
	lm := &LogMultiplexer{
		buffers:    make(map[string]*LogBuffer, len(services)),
		writers:    make(map[string]*ServiceWriter, len(services)),
		maxLines:   DefaultLogLines,
		timeFormat: "15:04:05",
		now:        time.Now,
	}
	for _, s := range services {
		lm.buffers[s] = NewLogBuffer(lm.maxLines)
	}
	return lm
}

// SetSink attaches the receiver of new lines.
func (lm *LogMultiplexer) SetSink(sink LogSink) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.sink = sink
}

// GetWriter returns the writer for a service, creating it on first use.
func (lm *LogMultiplexer) GetWriter(service string) *ServiceWriter {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if w, ok := lm.writers[service]; ok {
		return w
	}
	if _, ok := lm.buffers[service]; !ok {
		lm.buffers[service] = NewLogBuffer(lm.maxLines)
	}
	w := &ServiceWriter{multiplexer: lm, service: service}
	lm.writers[service] = w
	return w
}

// Lines returns the buffered output of a service.
func (lm *LogMultiplexer) Lines(service string) []string {
	lm.mu.RLock()
	buf := lm.buffers[service]
	lm.mu.RUnlock()
	if buf == nil {
		return nil
	}
	return buf.GetAll()
}

// Note records a controller message in the service log.
func (lm *LogMultiplexer) Note(service, msg string) {
	lm.appendLog(service, "» "+msg)
}

func (lm *LogMultiplexer) appendLog(service, line string) {
	lm.mu.RLock()
	buf := lm.buffers[service]
	sink := lm.sink
	lm.mu.RUnlock()
	if buf == nil {
		return
	}

	formatted := "[" + lm.now().Format(lm.timeFormat) + "] " + line
	buf.Append(formatted)
	if sink != nil {
		sink.SendLog(service, formatted)
	}
}

// ServiceWriter is an io.Writer that splits a server's output into lines.
type ServiceWriter struct {
	multiplexer *LogMultiplexer
	service     string
	buffer      []byte
	mu          sync.Mutex
}

// Write implements io.Writer
func (w *ServiceWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, p...)
	for {
		i := bytes.IndexByte(w.buffer, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buffer[:i], "\r"))
		w.buffer = w.buffer[i+1:]
		if line != "" {
			w.multiplexer.appendLog(w.service, line)
		}
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *ServiceWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buffer) > 0 {
		line := string(w.buffer)
		w.buffer = w.buffer[:0]
		w.multiplexer.appendLog(w.service, line)
	}
}

var _ io.Writer = (*ServiceWriter)(nil)

// LogBuffer provides a simple ring buffer for logs
type LogBuffer struct {
	lines    []string
	maxLines int
	mu       sync.RWMutex
}

// NewLogBuffer creates a new log buffer
func NewLogBuffer(maxLines int) *LogBuffer {
	return &LogBuffer{
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
	}
}

// Append adds a line, dropping the oldest one when full.
func (lb *LogBuffer) Append(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.lines) >= lb.maxLines {
		copy(lb.lines, lb.lines[1:])
		lb.lines = lb.lines[:len(lb.lines)-1]
	}
	lb.lines = append(lb.lines, line)
}

// GetAll returns all lines in the buffer
func (lb *LogBuffer) GetAll() []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]string, len(lb.lines))
	copy(result, lb.lines)
	return result
}

// GetLast returns the last n lines
func (lb *LogBuffer) GetLast(n int) []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if n >= len(lb.lines) {
		result := make([]string, len(lb.lines))
		copy(result, lb.lines)
		return result
	}
	result := make([]string, n)
	copy(result, lb.lines[len(lb.lines)-n:])
	return result
}

// Len returns the number of lines in the buffer
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.lines)
}
