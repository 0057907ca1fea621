package transfer

import (
	"bytes"
	"io"
	"time"
)

// newBufferReader wraps an accumulated direct-mode buffer as an
// io.Reader for the single PutStream call at commit time.
func newBufferReader(buf []byte) io.Reader {
	return bytes.NewReader(buf)
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
