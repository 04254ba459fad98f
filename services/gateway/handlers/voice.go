package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianVoice/pkg/extensions"
	"github.com/AleutianAI/AleutianVoice/services/gateway/middleware"
	"github.com/AleutianAI/AleutianVoice/services/gateway/observability"
	"github.com/AleutianAI/AleutianVoice/services/knowledge/retrieval"
	"github.com/AleutianAI/AleutianVoice/services/playback"
	"github.com/AleutianAI/AleutianVoice/services/reflex"
	"github.com/AleutianAI/AleutianVoice/services/transcript"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// VoiceClientFrame is a JSON control frame sent by the client.
// Binary websocket frames carry raw PCM16 audio and have no JSON wrapper.
type VoiceClientFrame struct {
	Type       string `json:"type"`                  // "utterance", "commit", "format", "drain"
	Text       string `json:"text,omitempty"`        // utterance text
	Role       string `json:"role,omitempty"`        // commit role, default "user"
	SampleRate int    `json:"sample_rate,omitempty"` // format frame
	Channels   int    `json:"channels,omitempty"`    // format frame
}

// VoiceServerFrame is a JSON frame sent by the server.
type VoiceServerFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Phrase    string          `json:"phrase,omitempty"`
	Pack      json.RawMessage `json:"pack,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Digest    string          `json:"digest,omitempty"`
	SHA256    string          `json:"sha256,omitempty"`
	Depth     int             `json:"depth,omitempty"`
	Error     string          `json:"error,omitempty"`
}

var voiceUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 64KB frames cover ~2s of 16kHz mono PCM16 per message
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendFrame(ws *websocket.Conn, frame VoiceServerFrame) error {
	err := ws.WriteJSON(frame)
	if err != nil {
		slog.Warn("failed to write voice frame", "error", err, "type", frame.Type)
	}
	return err
}

// HandleVoiceStream handles GET /v1/voice/stream.
//
// One websocket is one voice session: a transcript session row is created
// on connect and its id sent to the client. Text frames are JSON control
// messages; binary frames are raw PCM16 queued for playback. Utterance
// text accumulates in an mlocked buffer until commit, when it lands in
// the transcript with its digest.
func HandleVoiceStream(svc *retrieval.Service, store *transcript.Store,
	responder *reflex.Responder, player *playback.Player,
	metrics *observability.Metrics, audit extensions.AuditLogger) gin.HandlerFunc {

	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		ws, err := voiceUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade voice websocket", "error", err)
			return
		}
		defer ws.Close()

		ctx := c.Request.Context()
		session, err := store.CreateSession(ctx, c.Query("topic"))
		if err != nil {
			slog.Error("failed to create voice session", "error", err)
			_ = sendFrame(ws, VoiceServerFrame{Type: "error", Error: "failed to create session"})
			return
		}

		metrics.VoiceSessionStarted()
		defer metrics.VoiceSessionEnded()
		slog.Info("voice session started", "session_id", session.ID, "user_id", userID)

		if auditErr := audit.Log(ctx, extensions.AuditEvent{
			EventType:    "voice.connect",
			UserID:       userID,
			Action:       "create",
			ResourceType: "session",
			ResourceID:   session.ID,
			Outcome:      "success",
		}); auditErr != nil {
			slog.Warn("failed to record voice connect audit event", "error", auditErr)
		}

		if err := sendFrame(ws, VoiceServerFrame{Type: "session", SessionID: session.ID}); err != nil {
			return
		}

		// Per-connection state: PCM format and the in-progress utterance.
		sampleRate, channels := 16000, 1
		var acc UtteranceAccumulator
		defer func() {
			if acc != nil {
				acc.Destroy()
			}
		}()

		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				slog.Info("voice client disconnected", "session_id", session.ID, "error", err.Error())
				return
			}

			if mt == websocket.BinaryMessage {
				buf, err := playback.NewBuffer(sampleRate, channels, data)
				if err != nil {
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: err.Error()}) != nil {
						return
					}
					continue
				}
				if err := player.Enqueue(buf); err != nil {
					metrics.RecordError(observability.EndpointVoice, observability.ErrorCodeQueueFull)
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: err.Error()}) != nil {
						return
					}
					continue
				}
				metrics.RecordPlaybackEnqueued()
				if sendFrame(ws, VoiceServerFrame{Type: "queued", Depth: player.Depth()}) != nil {
					return
				}
				continue
			}

			var frame VoiceClientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "invalid control frame"}) != nil {
					return
				}
				continue
			}

			switch frame.Type {
			case "utterance":
				if frame.Text == "" {
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "utterance text required"}) != nil {
						return
					}
					continue
				}

				// The reflex ack goes out before retrieval so the
				// speaker hears something immediately.
				if sendFrame(ws, VoiceServerFrame{Type: "ack", Phrase: responder.Ack()}) != nil {
					return
				}

				if acc == nil {
					acc, err = NewUtteranceAccumulator()
					if err != nil {
						slog.Error("failed to create utterance accumulator", "error", err)
						if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "accumulator unavailable"}) != nil {
							return
						}
						continue
					}
				}
				if err := acc.Write(frame.Text); err != nil {
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: err.Error()}) != nil {
						return
					}
					continue
				}

				start := time.Now()
				fp, err := svc.RetrieveFactsPack(ctx, frame.Text, retrieval.Options{})
				if err != nil {
					status := "retrieval failed: " + err.Error()
					metrics.RecordRequest(observability.EndpointVoice, false)
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: status}) != nil {
						return
					}
					continue
				}
				serialized, err := fp.Serialize()
				if err != nil {
					slog.Error("failed to serialize fact pack", "error", err, "session_id", session.ID)
					continue
				}
				metrics.RecordRetrieval(observability.EndpointVoice,
					time.Since(start).Seconds(), len(fp.Facts), len(serialized))
				metrics.RecordRequest(observability.EndpointVoice, true)
				if sendFrame(ws, VoiceServerFrame{Type: "facts", Pack: serialized}) != nil {
					return
				}

			case "commit":
				if acc == nil {
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "nothing to commit"}) != nil {
						return
					}
					continue
				}
				text, sha, err := acc.Finalize()
				acc = nil
				if err != nil {
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: err.Error()}) != nil {
						return
					}
					continue
				}

				role := frame.Role
				if role == "" {
					role = transcript.RoleUser
				}
				entry, err := store.AppendEntry(ctx, session.ID, role, text)
				if err != nil {
					slog.Error("failed to commit utterance", "error", err, "session_id", session.ID)
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "commit failed: " + err.Error()}) != nil {
						return
					}
					continue
				}

				if auditErr := audit.Log(ctx, extensions.AuditEvent{
					EventType:    "voice.commit",
					UserID:       userID,
					Action:       "create",
					ResourceType: "entry",
					ResourceID:   entry.Digest,
					Outcome:      "success",
					Metadata: map[string]any{
						"session_id": session.ID,
						"seq":        entry.Seq,
						"sha256":     sha,
					},
				}); auditErr != nil {
					slog.Warn("failed to record commit audit event", "error", auditErr)
				}

				if sendFrame(ws, VoiceServerFrame{
					Type:      "committed",
					SessionID: session.ID,
					Seq:       entry.Seq,
					Digest:    entry.Digest,
					SHA256:    sha,
				}) != nil {
					return
				}

			case "format":
				if frame.SampleRate > 0 {
					sampleRate = frame.SampleRate
				}
				if frame.Channels > 0 {
					channels = frame.Channels
				}
				if sendFrame(ws, VoiceServerFrame{Type: "format_ok"}) != nil {
					return
				}

			case "drain":
				if err := player.Drain(ctx); err != nil {
					if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "drain interrupted"}) != nil {
						return
					}
					continue
				}
				if sendFrame(ws, VoiceServerFrame{Type: "played"}) != nil {
					return
				}

			default:
				if sendFrame(ws, VoiceServerFrame{Type: "error", Error: "unknown frame type: " + frame.Type}) != nil {
					return
				}
			}
		}
	}
}
