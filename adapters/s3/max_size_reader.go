package s3

import (
	"fmt"
	"io"
)

var ErrReachLimitType *ReachLimitError

type ReachLimitError struct {
	MaxBytes int64
}

func (e *ReachLimitError) Error() string {
	return fmt.Sprintf("reach limit of %d bytes", e.MaxBytes)
}

// NewMaxSizeReader wraps r so that reading more than maxSize bytes fails
// with ReachLimitError instead of buffering an oversized payload.
func NewMaxSizeReader(r io.Reader, maxSize int64) io.Reader {
	return &maxSizeReader{r, maxSize, maxSize}
}

type maxSizeReader struct {
	reader io.Reader
	i      int64 // configured limit
	n      int64 // bytes still allowed
}

func (r *maxSizeReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	// reading one byte past the remaining allowance is enough to detect
	// an oversized body without consuming the whole request buffer
	if int64(len(p)) > r.n+1 {
		p = p[:r.n+1]
	}
	n, err = r.reader.Read(p)

	if int64(n) <= r.n {
		r.n -= int64(n)
		return n, err
	}

	n = int(r.n)
	r.n = 0
	return n, &ReachLimitError{r.i}
}
