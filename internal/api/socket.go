package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/whisper-relay/internal/events"
)

// Inbound request names on the socket.
const (
	RequestConnect            = "connect"
	RequestStartTranscription = "start_transcription"
	RequestStopTranscription  = "stop_transcription"
	RequestAskAI              = "ask_ai"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

// clientMessage is a request frame sent by a socket client.
type clientMessage struct {
	Event string `json:"event"`
}

// SocketHandler serves the bidirectional client socket. Every connection
// receives all outbound events and may send control requests.
type SocketHandler struct {
	relay    Relay
	source   EventSource
	upgrader websocket.Upgrader
}

func NewSocketHandler(relay Relay, source EventSource, origins []string) *SocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &SocketHandler{
		relay:  relay,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := hlog.FromRequest(r).With().Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("socket client connected")

	ch, cancel := h.source.Subscribe(events.Filter{})
	defer cancel()

	replies := make(chan events.Event, 8)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go h.writeLoop(conn, ch, replies, done, writerDone, log)

	replies <- connectAck()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Msg("socket read failed")
			}
			break
		}
		if reply, ok := h.dispatch(data, log); ok {
			select {
			case replies <- reply:
			case <-writerDone:
			}
		}
	}

	close(done)
	<-writerDone
	log.Info().Msg("socket client disconnected")
}

// dispatch handles one client frame. It returns a reply addressed only to the
// sending client, if any.
func (h *SocketHandler) dispatch(data []byte, log zerolog.Logger) (events.Event, bool) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply("invalid message"), true
	}
	if msg.Event == RequestConnect {
		return connectAck(), true
	}
	if err := DispatchRequest(h.relay, msg.Event); err != nil {
		if errors.Is(err, ErrUnknownRequest) {
			return errorReply(err.Error()), true
		}
		// Start failures are broadcast as transcription_status.
		log.Debug().Err(err).Str("request", msg.Event).Msg("socket request failed")
	}
	return events.Event{}, false
}

// ErrUnknownRequest is returned for request names the relay does not handle.
var ErrUnknownRequest = errors.New("unknown event")

// DispatchRequest runs a control request by name. It is shared by every
// inbound transport.
func DispatchRequest(relay Relay, name string) error {
	switch name {
	case RequestStartTranscription:
		return relay.Start()
	case RequestStopTranscription:
		relay.Stop()
	case RequestAskAI:
		relay.RequestSummary()
	case RequestConnect:
	default:
		return fmt.Errorf("%w %q", ErrUnknownRequest, name)
	}
	return nil
}

func (h *SocketHandler) writeLoop(conn *websocket.Conn, bus <-chan events.Event, replies <-chan events.Event, done <-chan struct{}, writerDone chan<- struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		close(writerDone)
	}()

	write := func(e events.Event) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			log.Debug().Err(err).Msg("socket write failed")
			// Unblock the reader.
			conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case e, ok := <-bus:
			if !ok || !write(e) {
				return
			}
		case e := <-replies:
			if !write(e) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func connectAck() events.Event {
	return events.Event{
		Type:      RequestConnect,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      json.RawMessage(`{"status":"connected"}`),
	}
}

func errorReply(msg string) events.Event {
	data, _ := json.Marshal(ErrorResponse{Error: msg})
	return events.Event{
		Type:      "error",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}
