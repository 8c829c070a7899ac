package output

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Encode renders a payload as text, base64 encoded when b64 is set.
func Encode(payload []byte, b64 bool) string {
	if b64 {
		return base64.StdEncoding.EncodeToString(payload)
	}
	return string(payload)
}

// Line formats a message the way files and topic listings show it.
func Line(topic, text string) string {
	return topic + ": " + text
}

// Printer writes one line per message. Messages arrive on protocol
// goroutines, so writes are serialised.
type Printer struct {
	mu         sync.Mutex
	w          io.Writer
	showTopics bool
}

// NewPrinter creates a Printer writing to w. With showTopics each line is
// prefixed by the message topic.
func NewPrinter(w io.Writer, showTopics bool) *Printer {
	return &Printer{w: w, showTopics: showTopics}
}

// Print writes text for a message received on topic.
func (p *Printer) Print(topic, text string) error {
	line := text
	if p.showTopics {
		line = Line(topic, text)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// FileAppender appends messages to a file, opening and closing it for every
// message so that each line is on disk once Append returns.
type FileAppender struct {
	mu   sync.Mutex
	path string
}

// NewFileAppender prepares path for appending, creating parent directories.
func NewFileAppender(path string) (*FileAppender, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("output: create directory %s: %w", dir, err)
		}
	}
	return &FileAppender{path: path}, nil
}

// Path returns the file being appended to.
func (a *FileAppender) Path() string {
	return a.path
}

// Append writes "topic: text" as one line.
func (a *FileAppender) Append(topic, text string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("output: open %s: %w", a.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("output: close %s: %w", a.path, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, Line(topic, text)); err != nil {
		return fmt.Errorf("output: write %s: %w", a.path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("output: flush %s: %w", a.path, err)
	}
	return nil
}
