package utils

import (
	"github.com/valyala/bytebufferpool"
)

// transcriptPool backs the per-turn transcript accumulators. Streamed
// fragments append here before the assistant message is persisted, so
// buffers grow to response size and are worth recycling.
var transcriptPool bytebufferpool.Pool

// GetBuffer retrieves a pooled buffer for transcript accumulation.
func GetBuffer() *bytebufferpool.ByteBuffer {
	return transcriptPool.Get()
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(buf *bytebufferpool.ByteBuffer) {
	transcriptPool.Put(buf)
}
