// Package streamio provides the dispatcher's bidirectional byte-copy engine
// and its idle-timeout stream wrapper. Both are deliberately independent of
// any specific transport or protocol: Copy and IdleTimer operate on plain
// io.Reader/io.Writer/io.Closer values.
package streamio

import (
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// DefaultBufferSize is the per-direction copy buffer size used by Copy.
const DefaultBufferSize = 8 * 1024

// ErrWriteZero is returned when a writer reports writing zero bytes for a
// non-empty buffer. Looping on a writer like that would spin forever, so
// Copy treats it as fatal instead of retrying.
var ErrWriteZero = errors.New("streamio: write zero bytes into writer")

// Flusher is implemented by writers that buffer internally (e.g.
// bufio.Writer). Copy calls Flush after draining every buffer so
// interactive protocols see bytes promptly instead of waiting for the
// buffer to fill again.
type Flusher interface {
	Flush() error
}

// Stream is the minimal shape Copy needs from either side of a splice.
type Stream interface {
	io.Reader
	io.Writer
}

type copyState int

const (
	stateRead copyState = iota
	stateWrite
	stateFlush
	stateDone
)

// copyDirection drives a single {Read, Write, Flush, Done} state machine
// from r to w until r is exhausted, returning the number of bytes moved.
//
// Read attempts a single read into the buffer; a zero-length, error-free
// read means the source is exhausted and moves to Done. Write drains the
// filled region with repeated writes; a zero-length write is fatal
// (ErrWriteZero) rather than looped on. Flush calls the writer's Flush, if
// it has one, then returns to Read. A read error is surfaced only after
// whatever was read alongside it has been written and flushed, matching
// io.Reader's "may return n > 0 with err != nil" contract.
func copyDirection(r io.Reader, w io.Writer, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)

	var (
		amt        int64
		filled     int
		pos        int
		pendingErr error
		state      = stateRead
	)

	for {
		switch state {
		case stateRead:
			n, err := r.Read(buf)
			filled, pos, pendingErr = n, 0, err
			if n == 0 {
				state = stateDone
				continue
			}
			state = stateWrite

		case stateWrite:
			for pos < filled {
				n, err := w.Write(buf[pos:filled])
				if err != nil {
					return amt, err
				}
				if n == 0 {
					return amt, ErrWriteZero
				}
				pos += n
				amt += int64(n)
			}
			filled, pos = 0, 0
			state = stateFlush

		case stateFlush:
			if f, ok := w.(Flusher); ok {
				if err := f.Flush(); err != nil {
					return amt, err
				}
			}
			if pendingErr != nil {
				if errors.Is(pendingErr, io.EOF) {
					return amt, nil
				}
				return amt, pendingErr
			}
			state = stateRead

		case stateDone:
			if pendingErr != nil && !errors.Is(pendingErr, io.EOF) {
				return amt, pendingErr
			}
			return amt, nil
		}
	}
}

// Copy splices a and b: it copies a->b and b->a concurrently with
// DefaultBufferSize buffers, returning once both directions have completed
// (EOF) or either has failed. On clean completion it returns the byte
// counts moved in each direction; on failure it returns the first error
// observed, from whichever direction hit it first. A direction that is
// still blocked in Read when the other fails is left to unwind on its own
// once the caller closes the underlying streams — Copy does not attempt to
// interrupt a blocked read.
func Copy(a, b Stream) (aToB int64, bToA int64, err error) {
	return CopyWithBufferSize(a, b, DefaultBufferSize, DefaultBufferSize)
}

// CopyWithBufferSize is Copy with an explicit, optionally per-direction
// buffer size.
func CopyWithBufferSize(a, b Stream, aToBBufSize, bToABufSize int) (aToB int64, bToA int64, err error) {
	var g errgroup.Group

	g.Go(func() error {
		n, err := copyDirection(a, b, aToBBufSize)
		aToB = n
		return err
	})
	g.Go(func() error {
		n, err := copyDirection(b, a, bToABufSize)
		bToA = n
		return err
	})

	err = g.Wait()
	return aToB, bToA, err
}
