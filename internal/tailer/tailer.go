// Package tailer reads growing JSONL transcript files incrementally. A
// Tailer remembers its byte position between reads and buffers a trailing
// partial line until a later append completes it, so concurrent writers that
// flush mid-line never produce garbage entries.
package tailer

import (
	"bytes"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Tailer tails a single session file. Reads must come from one goroutine
// (each tracked session owns exactly one Tailer); the waiting-for-input flag
// is atomic so API handlers on other goroutines can poll it.
type Tailer struct {
	path   string
	format Format
	log    *logrus.Logger

	// Byte position of the next read. Only moves forward, except when the
	// file is detected to have been truncated, in which case it resets to
	// zero and the whole file is re-read.
	offset  int64
	pending []byte // bytes read since the last line terminator

	waiting atomic.Bool
}

func New(path string, format Format, log *logrus.Logger) *Tailer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tailer{path: path, format: format, log: log}
}

func (t *Tailer) Path() string   { return t.path }
func (t *Tailer) Format() Format { return t.format }
func (t *Tailer) Offset() int64  { return t.offset }

// WaitingForInput reports whether the most recent entries indicate the agent
// has stopped with a plain response and is waiting for the user.
func (t *Tailer) WaitingForInput() bool { return t.waiting.Load() }

// ReadNewLines reads everything appended since the last call and returns the
// complete, parseable, included entries. Errors never propagate: a missing or
// unreadable file yields an empty batch with the offset preserved, so the
// next call resumes where this one left off. Malformed lines are logged and
// skipped permanently.
func (t *Tailer) ReadNewLines() []Entry {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.log.Warnf("session file missing: %s", t.path)
		} else {
			t.log.Errorf("open %s: %v", t.path, err)
		}
		return nil
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < t.offset {
		// Truncated or rotated underneath us. Start over from byte 0;
		// re-read is the only safe reconciliation without a WAL.
		t.log.Warnf("session file truncated (%d < %d), re-reading: %s", info.Size(), t.offset, t.path)
		t.offset = 0
		t.pending = nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.log.Errorf("seek %s: %v", t.path, err)
		return nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.log.Errorf("read %s: %v", t.path, err)
		return nil
	}
	t.offset += int64(len(data))

	if len(data) == 0 {
		return nil
	}

	buf := append(t.pending, data...)
	lines := bytes.Split(buf, []byte("\n"))

	// The last element is everything after the final terminator: empty when
	// the file ends in a newline, a partial line otherwise. Either way it
	// becomes the pending buffer and is not parsed yet.
	t.pending = append([]byte(nil), lines[len(lines)-1]...)

	var entries []Entry
	for _, line := range lines[:len(lines)-1] {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		entry, include, err := t.format.Decode(line)
		if err != nil {
			t.log.Warnf("skipping malformed line in %s: %v", t.path, err)
			continue
		}
		if !include {
			continue
		}

		t.waiting.Store(t.format.WaitingAfter(entry, t.waiting.Load()))
		entries = append(entries, entry)
	}

	return entries
}

// ReadAll re-reads the whole file from byte 0 through an independent
// position, leaving this tailer's own offset and pending buffer untouched.
// Used for catch-up replay to a newly connected subscriber.
func (t *Tailer) ReadAll() []Entry {
	fresh := New(t.path, t.format, t.log)
	return fresh.ReadNewLines()
}
