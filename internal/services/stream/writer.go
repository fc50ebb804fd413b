package stream

import (
	"bufio"
	"encoding/json"

	"github.com/mfcastro/aihub/internal/models"

	"github.com/valyala/fasthttp"
)

// ConnectionState tracks whether the client is still attached.
type ConnectionState interface {
	IsConnected() bool
}

// SSEWriter frames relay events as server-sent events on a buffered
// response stream, checking the connection before each write so a gone
// client is noticed at the next event rather than at flush time.
type SSEWriter struct {
	writer    *bufio.Writer
	connState ConnectionState
	requestID string
}

func NewSSEWriter(writer *bufio.Writer, connState ConnectionState, requestID string) *SSEWriter {
	return &SSEWriter{
		writer:    writer,
		connState: connState,
		requestID: requestID,
	}
}

// Emit writes one event frame and flushes it. Fragments are small and
// latency matters more than syscall count here.
func (w *SSEWriter) Emit(event models.StreamEvent) error {
	if !w.connState.IsConnected() {
		return NewClientDisconnectError(w.requestID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return NewWriteFailureError(w.requestID, "event encode failed", err)
	}

	if _, err := w.writer.WriteString("data: "); err != nil {
		return w.classify(err, "write failed")
	}
	if _, err := w.writer.Write(payload); err != nil {
		return w.classify(err, "write failed")
	}
	if _, err := w.writer.WriteString("\n\n"); err != nil {
		return w.classify(err, "write failed")
	}

	if err := w.writer.Flush(); err != nil {
		return w.classify(err, "flush failed")
	}
	return nil
}

func (w *SSEWriter) classify(err error, message string) error {
	if IsConnectionClosed(err) {
		return NewClientDisconnectError(w.requestID)
	}
	return NewWriteFailureError(w.requestID, message, err)
}

// FastHTTPConnectionState adapts a fasthttp request context.
type FastHTTPConnectionState struct {
	ctx *fasthttp.RequestCtx
}

func NewFastHTTPConnectionState(ctx *fasthttp.RequestCtx) *FastHTTPConnectionState {
	return &FastHTTPConnectionState{ctx: ctx}
}

func (c *FastHTTPConnectionState) IsConnected() bool {
	if c.ctx == nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}
