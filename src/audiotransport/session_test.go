package audiotransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	messageType int
	data        []byte
}

// speechServer acknowledges start, answers stop with a final transcript and
// records everything the client sent.
type speechServer struct {
	*httptest.Server

	mu       sync.Mutex
	messages []received
	auth     string
	conns    chan *websocket.Conn
}

func newSpeechServer(t *testing.T, onText func(conn *websocket.Conn, ctl wire.Control)) *speechServer {
	t.Helper()
	s := &speechServer{conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.conns <- conn

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, received{mt, data})
			s.mu.Unlock()

			if mt != websocket.TextMessage {
				continue
			}
			var ctl wire.Control
			if json.Unmarshal(data, &ctl) == nil && onText != nil {
				onText(conn, ctl)
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *speechServer) snapshot() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]received(nil), s.messages...)
}

func defaultReplies(conn *websocket.Conn, ctl wire.Control) {
	switch ctl.Type {
	case "start":
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"recording_started"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"partial","text":"hello"}`))
	case "stop":
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"final","text":"hello world"}`))
	}
}

type recorder struct {
	mu       sync.Mutex
	events   []string
	errs     []error
	finals   chan string
	started  chan struct{}
	playback []string
}

func newRecorder() *recorder {
	return &recorder{finals: make(chan string, 4), started: make(chan struct{}, 4)}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnPartialTranscript: func(text string) { r.add("partial:" + text) },
		OnFinalTranscript: func(text string) {
			r.add("final:" + text)
			r.finals <- text
		},
		OnRecordingStart: func() {
			r.add("start")
			r.started <- struct{}{}
		},
		OnRecordingStop: func() { r.add("stop") },
		OnAudioLevel:    func(level int) { r.add("level") },
		OnSTTError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnPlayback: func(id string, playing bool) {
			r.mu.Lock()
			if playing {
				r.playback = append(r.playback, "start:"+id)
			} else {
				r.playback = append(r.playback, "end:"+id)
			}
			r.mu.Unlock()
		},
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestRecordingLifecycle(t *testing.T) {
	srv := newSpeechServer(t, defaultReplies)
	rec := newRecorder()

	client := NewClient(Config{URL: srv.URL + "/voice", APIKey: "k"})
	session, err := client.Open(context.Background(), rec.callbacks())
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.StartRecording(16000))
	waitFor(t, rec.started)

	for i := 0; i < 3; i++ {
		require.NoError(t, session.SendFrame(audio.Frame{Seq: i, SampleRate: 16000, Samples: []int16{int16(i), int16(i)}}))
	}
	require.NoError(t, session.StopRecording())
	assert.Equal(t, "hello world", waitFor(t, rec.finals))

	assert.Equal(t, []string{"start", "partial:hello", "stop", "final:hello world"}, rec.list())

	msgs := srv.snapshot()
	require.Len(t, msgs, 5)
	assert.JSONEq(t, `{"type":"start","sample_rate":16000,"encoding":"pcm16"}`, string(msgs[0].data))
	for i := 1; i <= 3; i++ {
		assert.Equal(t, websocket.BinaryMessage, msgs[i].messageType)
		assert.Equal(t, audio.EncodePCM16([]int16{int16(i - 1), int16(i - 1)}), msgs[i].data)
	}
	assert.JSONEq(t, `{"type":"stop"}`, string(msgs[4].data))

	srv.mu.Lock()
	assert.Equal(t, "Bearer k", srv.auth)
	srv.mu.Unlock()
}

func TestStopWithoutAudioStillNotifies(t *testing.T) {
	srv := newSpeechServer(t, nil)
	rec := newRecorder()

	session, err := NewClient(Config{URL: srv.URL}).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.StopRecording())
	require.NoError(t, session.StopRecording())
	assert.Equal(t, []string{"stop"}, rec.list())
	assert.ErrorIs(t, session.SendFrame(audio.Frame{Samples: []int16{1}}), ErrNotRecording)
}

func TestServerStopIsNotDeliveredTwice(t *testing.T) {
	srv := newSpeechServer(t, func(conn *websocket.Conn, ctl wire.Control) {
		switch ctl.Type {
		case "start":
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"recording_started"}`))
		case "stop":
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"recording_stopped"}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"final","text":"ok"}`))
		}
	})
	rec := newRecorder()

	session, err := NewClient(Config{URL: srv.URL}).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.StartRecording(16000))
	waitFor(t, rec.started)
	require.NoError(t, session.StopRecording())
	waitFor(t, rec.finals)

	assert.Equal(t, []string{"start", "stop", "final:ok"}, rec.list())
}

func TestBargeInAndPlayback(t *testing.T) {
	srv := newSpeechServer(t, nil)
	rec := newRecorder()

	session, err := NewClient(Config{URL: srv.URL}).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)
	defer session.Close()

	conn := waitFor(t, srv.conns)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"tts_start","session_id":"tts-9"}`)))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.playback) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, session.ControlBargeIn(wire.BargeInPause, "tts-9"))
	require.Eventually(t, func() bool { return len(srv.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"barge_in","action":"pause","session_id":"tts-9"}`, string(srv.snapshot()[0].data))
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(Config{URL: srv.URL, ConnectTimeout: time.Second}).Open(context.Background(), Callbacks{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportConnect)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "dial", terr.Op)
	assert.True(t, strings.HasPrefix(terr.URL, "ws://"))

	_, err = NewClient(Config{URL: "ftp://example.com"}).Open(context.Background(), Callbacks{})
	assert.ErrorIs(t, err, ErrTransportConnect)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestUnexpectedCloseReportedOnce(t *testing.T) {
	srv := newSpeechServer(t, nil)
	rec := newRecorder()

	session, err := NewClient(Config{URL: srv.URL}).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)
	defer session.Close()

	conn := waitFor(t, srv.conns)
	conn.Close()

	waitFor(t, session.Done())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrTransportClosed)
	assert.ErrorIs(t, session.Err(), ErrTransportClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := newSpeechServer(t, nil)
	rec := newRecorder()

	session, err := NewClient(Config{URL: srv.URL}).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())
	waitFor(t, session.Done())

	assert.ErrorIs(t, session.StartRecording(16000), ErrSessionClosed)
	assert.ErrorIs(t, session.ControlBargeIn(wire.BargeInPause, "x"), ErrSessionClosed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.errs)
}
