package hasher

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Equal reports whether two files have byte-identical content.
// Both files are read sequentially in lockstep; the first differing block
// ends the comparison.
func Equal(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, &ReadError{Path: a, Err: err}
	}
	defer func() { _ = fa.Close() }()

	fb, err := os.Open(b)
	if err != nil {
		return false, &ReadError{Path: b, Err: err}
	}
	defer func() { _ = fb.Close() }()

	ia, err := fa.Stat()
	if err != nil {
		return false, &ReadError{Path: a, Err: err}
	}
	ib, err := fb.Stat()
	if err != nil {
		return false, &ReadError{Path: b, Err: err}
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	bufA := make([]byte, blockSize)
	bufB := make([]byte, blockSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA, err := readDone(a, errA)
		if err != nil {
			return false, err
		}
		doneB, err := readDone(b, errB)
		if err != nil {
			return false, err
		}
		if doneA || doneB {
			return doneA == doneB, nil
		}
	}
}

// readDone maps io.ReadFull's end-of-input errors to done=true.
func readDone(path string, err error) (bool, error) {
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true, nil
	default:
		return false, &ReadError{Path: path, Err: err}
	}
}
