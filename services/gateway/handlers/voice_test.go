package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/pack"
	"github.com/AleutianAI/AleutianVoice/services/playback"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
)

// newVoiceServer wires the full voice stack behind an httptest server.
// The insecure-memory override keeps the accumulator usable on hosts
// where RLIMIT_MEMLOCK is too low for mlocked buffers.
func newVoiceServer(t *testing.T) (*httptest.Server, *transcript.Store, *capturingAuditLogger) {
	t.Helper()
	t.Setenv("ALEUTIAN_VOICE_INSECURE_MEMORY", "true")

	svc, _ := newTestRetrieval(t)
	store := newTestStore(t)
	audit := &capturingAuditLogger{}

	dist, err := reflex.New(reflex.DefaultPhrases())
	require.NoError(t, err)
	responder := reflex.NewResponder(dist, 42)

	logger := logging.New(logging.Config{Quiet: true})
	player := playback.NewPlayer(playback.NullSink{}, playback.DefaultPlayerConfig(), logger)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, player.Start(ctx))
	t.Cleanup(func() {
		_ = player.Stop()
		cancel()
	})

	router := gin.New()
	router.GET("/v1/voice/stream", HandleVoiceStream(
		svc, store, responder, player, observability.New(prometheus.NewRegistry()), audit))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store, audit
}

func dialVoice(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/voice/stream" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readVoiceFrame(t *testing.T, ws *websocket.Conn) VoiceServerFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame VoiceServerFrame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func sendVoiceFrame(t *testing.T, ws *websocket.Conn, frame VoiceClientFrame) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(frame))
}

func TestVoiceStream_SessionFrameOnConnect(t *testing.T) {
	srv, store, audit := newVoiceServer(t)
	ws := dialVoice(t, srv, "?topic=demo")

	frame := readVoiceFrame(t, ws)
	require.Equal(t, "session", frame.Type)
	require.NotEmpty(t, frame.SessionID)

	session, err := store.GetSession(context.Background(), frame.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "demo", session.Topic)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "voice.connect", events[0].EventType)
	assert.Equal(t, frame.SessionID, events[0].ResourceID)
}

func TestVoiceStream_UtteranceReturnsAckThenFacts(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "utterance", Text: "performance targets"})

	ack := readVoiceFrame(t, ws)
	require.Equal(t, "ack", ack.Type)
	assert.NotEmpty(t, ack.Phrase, "reflex phrase should arrive before retrieval")

	facts := readVoiceFrame(t, ws)
	require.Equal(t, "facts", facts.Type)
	require.NotEmpty(t, facts.Pack)

	var fp pack.FactsPack
	require.NoError(t, json.Unmarshal(facts.Pack, &fp))
	assert.Equal(t, "performance targets", fp.Topic)
	assert.NotEmpty(t, fp.Facts)
}

func TestVoiceStream_EmptyUtteranceRejected(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "utterance"})

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "utterance text required")
}

func TestVoiceStream_CommitLandsInTranscript(t *testing.T) {
	srv, store, audit := newVoiceServer(t)
	ws := dialVoice(t, srv, "?topic=numbers")

	session := readVoiceFrame(t, ws)
	require.Equal(t, "session", session.Type)

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "utterance", Text: "how were the numbers"})
	readVoiceFrame(t, ws) // ack
	readVoiceFrame(t, ws) // facts

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "commit"})
	committed := readVoiceFrame(t, ws)
	require.Equal(t, "committed", committed.Type)
	assert.Equal(t, session.SessionID, committed.SessionID)
	assert.Equal(t, uint64(0), committed.Seq)
	assert.NotEmpty(t, committed.Digest)

	sum := sha256.Sum256([]byte("how were the numbers"))
	assert.Equal(t, hex.EncodeToString(sum[:]), committed.SHA256,
		"content digest must cover exactly the accumulated bytes")

	entries, err := store.ListEntries(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "how were the numbers", entries[0].Text)
	assert.Equal(t, transcript.RoleUser, entries[0].Role)
	assert.Equal(t, committed.Digest, entries[0].Digest)

	// connect + commit
	events := audit.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "voice.commit", events[1].EventType)
	assert.Equal(t, committed.Digest, events[1].ResourceID)
}

func TestVoiceStream_PartialUtterancesAccumulate(t *testing.T) {
	srv, store, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")

	session := readVoiceFrame(t, ws)

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "utterance", Text: "performance "})
	readVoiceFrame(t, ws) // ack
	readVoiceFrame(t, ws) // facts
	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "utterance", Text: "targets"})
	readVoiceFrame(t, ws) // ack
	readVoiceFrame(t, ws) // facts

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "commit", Role: "assistant"})
	committed := readVoiceFrame(t, ws)
	require.Equal(t, "committed", committed.Type)

	sum := sha256.Sum256([]byte("performance targets"))
	assert.Equal(t, hex.EncodeToString(sum[:]), committed.SHA256)

	entries, err := store.ListEntries(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "performance targets", entries[0].Text)
	assert.Equal(t, transcript.RoleAssistant, entries[0].Role)
}

func TestVoiceStream_CommitWithoutUtterance(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "commit"})

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "nothing to commit")
}

func TestVoiceStream_BinaryFrameQueuedForPlayback(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	// 100ms of 16kHz mono PCM16.
	pcm := make([]byte, 3200)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, pcm))

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "queued", frame.Type)
}

func TestVoiceStream_OddPCMRejected(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03}))

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "even")
}

func TestVoiceStream_FormatFrame(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "format", SampleRate: 22050, Channels: 2})

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "format_ok", frame.Type)

	// Stereo frames are 4 bytes each; this payload is only valid under
	// the new format.
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, make([]byte, 4)))
	frame = readVoiceFrame(t, ws)
	assert.Equal(t, "queued", frame.Type)
}

func TestVoiceStream_DrainAfterQueue(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, make([]byte, 320)))
	frame := readVoiceFrame(t, ws)
	require.Equal(t, "queued", frame.Type)

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "drain"})
	frame = readVoiceFrame(t, ws)
	assert.Equal(t, "played", frame.Type)
}

func TestVoiceStream_UnknownFrameTypeRejected(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	sendVoiceFrame(t, ws, VoiceClientFrame{Type: "bogus"})

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "unknown frame type")
}

func TestVoiceStream_MalformedControlFrame(t *testing.T) {
	srv, _, _ := newVoiceServer(t)
	ws := dialVoice(t, srv, "")
	readVoiceFrame(t, ws) // session

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	frame := readVoiceFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "invalid control frame")
}
