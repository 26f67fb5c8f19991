package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"codeberg.org/mutker/datafilter/internal/errors"
)

const (
	stdioBuffer  = 64
	maxLineBytes = 1 << 20
)

type stdioSource struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// NewStdioSource reads one record per line from r. Blank lines are skipped
// and trailing carriage returns removed. The channel closes at EOF.
func NewStdioSource(r io.Reader) Source {
	s := &stdioSource{
		ch:   make(chan []byte, stdioBuffer),
		done: make(chan struct{}),
	}
	go s.read(r)

	return s
}

func (s *stdioSource) read(r io.Reader) {
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		// Scanner reuses its buffer between calls.
		record := make([]byte, len(line))
		copy(record, line)

		select {
		case s.ch <- record:
		case <-s.done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.err = errFactory.Wrap(errors.ErrSourceClose, err)
		s.mu.Unlock()
	}
}

func (s *stdioSource) Messages() <-chan []byte {
	return s.ch
}

func (s *stdioSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery. A read already blocked on the underlying reader is
// abandoned.
func (s *stdioSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

type stdioSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStdioSink writes one record per line to w, flushing after each record.
func NewStdioSink(w io.Writer) Sink {
	return &stdioSink{w: bufio.NewWriter(w)}
}

func (s *stdioSink) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(payload); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}
	if err := s.w.Flush(); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	return nil
}

func (s *stdioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}
