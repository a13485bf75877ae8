package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ndaru/kirana/pkg/connector"
)

// StreamMessage is one websocket frame of a streaming completion.
type StreamMessage struct {
	Type string      `json:"type"` // trace, chunk, done, error
	Data interface{} `json:"data,omitempty"`
}

// StreamDone is the payload of the final frame.
type StreamDone struct {
	RequestID string                `json:"request_id"`
	Reply     string                `json:"reply,omitempty"`
	Response  *CompletionResponse   `json:"response"`
	Usage     *connector.TokenUsage `json:"usage,omitempty"`
}

// handleCompletionStream runs a completion over a websocket, forwarding model
// output chunks as they arrive. The client sends one CompletionRequest frame
// and receives chunk frames followed by a done frame.
func (s *Server) handleCompletionStream(w http.ResponseWriter, r *http.Request) {
	assistant, err := s.store.GetAssistant(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Websocket closed before request frame")
		return
	}

	var req CompletionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendStreamError(conn, "invalid request frame: "+err.Error())
		return
	}
	if req.Message == "" {
		s.sendStreamError(conn, "message is required")
		return
	}

	result, orchReq, err := s.orchestrate(r, assistant, req)
	if err != nil {
		s.sendStreamError(conn, err.Error())
		return
	}

	if result.Trace != "" {
		s.sendStream(conn, StreamMessage{Type: "trace", Data: result.Trace})
	}

	response := &CompletionResponse{
		RequestID: orchReq.RequestID,
		Messages:  result.Messages,
		Sources:   result.Sources,
		Report:    result.Report,
		Trace:     result.Trace,
	}

	done := StreamDone{
		RequestID: orchReq.RequestID,
		Response:  response,
	}

	if s.conn != nil {
		reply, err := s.conn.Stream(r.Context(), s.buildConnectorRequest(assistant, result.Messages), func(chunk connector.StreamChunk) error {
			if chunk.Text == "" {
				return nil
			}
			return conn.WriteJSON(StreamMessage{Type: "chunk", Data: chunk.Text})
		})
		if err != nil {
			s.sendStreamError(conn, err.Error())
			return
		}
		response.Reply = reply.Content
		response.Usage = reply.Usage
		done.Reply = reply.Content
		done.Usage = reply.Usage
	}

	s.sendStream(conn, StreamMessage{Type: "done", Data: done})
}

func (s *Server) sendStream(conn *websocket.Conn, msg StreamMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write stream frame")
	}
}

func (s *Server) sendStreamError(conn *websocket.Conn, message string) {
	s.sendStream(conn, StreamMessage{Type: "error", Data: message})
}
