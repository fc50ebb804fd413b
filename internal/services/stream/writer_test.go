package stream

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mfcastro/aihub/internal/models"
)

type fakeConnState struct {
	connected bool
}

func (f *fakeConnState) IsConnected() bool { return f.connected }

func TestEmitFramesEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewSSEWriter(bufio.NewWriter(&buf), &fakeConnState{connected: true}, "req_test")

	err := w.Emit(models.StreamEvent{Type: models.StreamEventContent, Content: "hello"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "data: ") || !strings.HasSuffix(out, "\n\n") {
		t.Errorf("frame = %q, want data: prefix and blank-line terminator", out)
	}
	if !strings.Contains(out, `"type":"content"`) || !strings.Contains(out, `"content":"hello"`) {
		t.Errorf("frame payload = %q", out)
	}
}

func TestEmitAfterDisconnect(t *testing.T) {
	var buf bytes.Buffer
	w := NewSSEWriter(bufio.NewWriter(&buf), &fakeConnState{connected: false}, "req_test")

	err := w.Emit(models.StreamEvent{Type: models.StreamEventContent, Content: "x"})
	if !IsClientDisconnect(err) {
		t.Errorf("err = %v, want client disconnect", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes after disconnect", buf.Len())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write tcp: broken pipe")
}

func TestEmitClassifiesClosedConnection(t *testing.T) {
	// Tiny buffer forces the write through immediately.
	w := NewSSEWriter(bufio.NewWriterSize(failingWriter{}, 1), &fakeConnState{connected: true}, "req_test")

	err := w.Emit(models.StreamEvent{Type: models.StreamEventContent, Content: "hello"})
	if !IsClientDisconnect(err) {
		t.Errorf("err = %v, want classified disconnect", err)
	}
}

func TestIsConnectionClosed(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("write: broken pipe"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("use of closed network connection"), true},
		{errors.New("some other failure"), false},
	}
	for _, tt := range tests {
		if got := IsConnectionClosed(tt.err); got != tt.want {
			t.Errorf("IsConnectionClosed(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
