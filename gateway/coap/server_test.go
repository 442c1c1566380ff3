package coap

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrygate/errors"
)

type nopHandler struct{}

func (nopHandler) HandleUplink(ctx context.Context, raw []byte) ([]byte, error) {
	return nil, nil
}

// fakeHandler echoes a fixed reply or a fixed error and remembers the raw
// payload it was given.
type fakeHandler struct {
	reply []byte
	err   error
	raw   []byte
}

func (h *fakeHandler) HandleUplink(ctx context.Context, raw []byte) ([]byte, error) {
	h.raw = raw
	return h.reply, h.err
}

// captureWriter records the response the handler sets.
type captureWriter struct {
	code    codes.Code
	format  message.MediaType
	payload []byte
}

func (w *captureWriter) SetResponse(code codes.Code, contentFormat message.MediaType, d io.ReadSeeker, opts ...message.Option) error {
	w.code = code
	w.format = contentFormat
	if d != nil {
		b, err := io.ReadAll(d)
		if err != nil {
			return err
		}
		w.payload = b
	}
	return nil
}

func (w *captureWriter) Conn() mux.Conn { return nil }

func (w *captureWriter) Message() *pool.Message { return nil }

func (w *captureWriter) SetMessage(m *pool.Message) {}

func uplinkRequest(t *testing.T, code codes.Code, body []byte) *mux.Message {
	t.Helper()
	m := pool.NewMessage(context.Background())
	m.SetCode(code)
	if body != nil {
		m.SetContentFormat(message.AppOctets)
		m.SetBody(bytes.NewReader(body))
	}
	return &mux.Message{Message: m}
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestNewServerDefaults(t *testing.T) {
	srv, err := NewServer(nopHandler{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, srv.addr)
}

func TestStopBeforeStart(t *testing.T) {
	srv, err := NewServer(nopHandler{}, Options{})
	require.NoError(t, err)

	err = srv.Stop(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotStarted))
}

func TestHandleUplinkRepliesContent(t *testing.T) {
	handler := &fakeHandler{reply: []byte{0x08, 0xd0, 0x05}}
	srv, err := NewServer(handler, Options{})
	require.NoError(t, err)

	w := &captureWriter{}
	srv.handleUplink(w, uplinkRequest(t, codes.POST, []byte{0x01, 0x02}))

	assert.Equal(t, codes.Content, w.code)
	assert.Equal(t, message.AppOctets, w.format)
	assert.Equal(t, []byte{0x08, 0xd0, 0x05}, w.payload)
	assert.Equal(t, []byte{0x01, 0x02}, handler.raw)
}

func TestHandleUplinkErrorRepliesServerError(t *testing.T) {
	handler := &fakeHandler{
		err: errors.WrapInvalid(errors.ErrDecodeFailed, "ingest", "HandleUplink", "decode payload"),
	}
	srv, err := NewServer(handler, Options{})
	require.NoError(t, err)

	w := &captureWriter{}
	srv.handleUplink(w, uplinkRequest(t, codes.POST, []byte{0xff}))

	assert.Equal(t, codes.InternalServerError, w.code)
	assert.Empty(t, w.payload)
}

func TestHandleUplinkRejectsNonPost(t *testing.T) {
	srv, err := NewServer(nopHandler{}, Options{})
	require.NoError(t, err)

	w := &captureWriter{}
	srv.handleUplink(w, uplinkRequest(t, codes.GET, nil))

	assert.Equal(t, codes.MethodNotAllowed, w.code)
}
