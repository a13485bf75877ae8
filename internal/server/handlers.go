package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ndaru/kirana/internal/store"
	"github.com/ndaru/kirana/pkg/connector"
	"github.com/ndaru/kirana/pkg/orchestrator"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// CompletionRequest is the body of a completion call.
type CompletionRequest struct {
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	History   []toolkit.Turn `json:"history,omitempty"`
}

// CompletionResponse is the completion call's answer. Reply is empty when no
// AI provider is configured; Messages always carries the processed message
// list so authors can preview the prompt the model would receive.
type CompletionResponse struct {
	RequestID string                        `json:"request_id"`
	Reply     string                        `json:"reply,omitempty"`
	Messages  []orchestrator.Message        `json:"messages"`
	Sources   []toolkit.Source              `json:"sources,omitempty"`
	Report    *orchestrator.ExecutionReport `json:"report,omitempty"`
	Trace     string                        `json:"trace,omitempty"`
	Usage     *connector.TokenUsage         `json:"usage,omitempty"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ListAvailableTools())
}

func (s *Server) handleListAssistants(w http.ResponseWriter, r *http.Request) {
	assistants, err := s.store.ListAssistants(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, assistants)
}

func (s *Server) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	var assistant store.Assistant
	if err := json.NewDecoder(r.Body).Decode(&assistant); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if assistant.Name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("assistant name is required"))
		return
	}
	if assistant.ID == "" {
		assistant.ID = uuid.NewString()
	}
	if assistant.Strategy == "" {
		assistant.Strategy = orchestrator.StrategySequential
	}

	if err := s.engine.ValidateConfig(assistant.OrchestratorConfig()); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.CreateAssistant(r.Context(), &assistant); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info().Str("assistant_id", assistant.ID).Str("name", assistant.Name).Msg("Assistant created")
	s.writeJSON(w, http.StatusCreated, assistant)
}

func (s *Server) handleGetAssistant(w http.ResponseWriter, r *http.Request) {
	assistant, err := s.store.GetAssistant(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, assistant)
}

func (s *Server) handleUpdateAssistant(w http.ResponseWriter, r *http.Request) {
	var assistant store.Assistant
	if err := json.NewDecoder(r.Body).Decode(&assistant); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	assistant.ID = r.PathValue("id")

	if err := s.engine.ValidateConfig(assistant.OrchestratorConfig()); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.UpdateAssistant(r.Context(), &assistant); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, assistant)
}

func (s *Server) handleDeleteAssistant(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAssistant(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRubrics(w http.ResponseWriter, r *http.Request) {
	rubrics, err := s.store.ListRubrics(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rubrics)
}

func (s *Server) handleCreateRubric(w http.ResponseWriter, r *http.Request) {
	var rubric store.Rubric
	if err := json.NewDecoder(r.Body).Decode(&rubric); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if rubric.Title == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("rubric title is required"))
		return
	}
	if rubric.ID == "" {
		rubric.ID = uuid.NewString()
	}

	if err := s.store.CreateRubric(r.Context(), &rubric); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rubric)
}

func (s *Server) handleGetRubric(w http.ResponseWriter, r *http.Request) {
	rubric, err := s.store.GetRubric(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rubric)
}

func (s *Server) handleUpdateRubric(w http.ResponseWriter, r *http.Request) {
	var rubric store.Rubric
	if err := json.NewDecoder(r.Body).Decode(&rubric); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	rubric.ID = r.PathValue("id")

	if err := s.store.UpdateRubric(r.Context(), &rubric); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rubric)
}

func (s *Server) handleDeleteRubric(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRubric(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	assistant, err := s.store.GetAssistant(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	result, orchReq, err := s.orchestrate(r, assistant, req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		s.writeError(w, completionStatus(err), err)
		return
	}

	response := CompletionResponse{
		RequestID: orchReq.RequestID,
		Messages:  result.Messages,
		Sources:   result.Sources,
		Report:    result.Report,
		Trace:     result.Trace,
	}

	if s.conn != nil {
		reply, err := s.conn.Complete(r.Context(), s.buildConnectorRequest(assistant, result.Messages))
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		response.Reply = reply.Content
		response.Usage = reply.Usage
	}

	s.writeJSON(w, http.StatusOK, response)
}

// orchestrate runs the assistant's tool orchestration for one request.
func (s *Server) orchestrate(r *http.Request, assistant *store.Assistant, req CompletionRequest) (*orchestrator.Result, orchestrator.Request, error) {
	orchReq := orchestrator.Request{
		RequestID:      req.RequestID,
		UserMessage:    req.Message,
		History:        req.History,
		PromptTemplate: assistant.PromptTemplate,
	}
	if orchReq.RequestID == "" {
		orchReq.RequestID = uuid.NewString()
	}

	result, err := s.engine.Run(r.Context(), orchReq, assistant.OrchestratorConfig())
	return result, orchReq, err
}

func (s *Server) buildConnectorRequest(assistant *store.Assistant, messages []orchestrator.Message) connector.Request {
	model := assistant.Model
	if model == "" {
		model = s.options.DefaultModel
	}

	converted := make([]connector.Message, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, connector.Message{Role: msg.Role, Content: msg.Content})
	}

	return connector.Request{
		Model:    model,
		Messages: converted,
	}
}

// completionStatus maps orchestration errors to HTTP status codes.
// Configuration problems are client errors; everything else is a failed run.
func completionStatus(err error) int {
	var unknownStrategy *orchestrator.UnknownStrategyError
	var unknownTool *toolkit.UnknownToolError
	var invalidConfig *toolkit.InvalidToolConfigError
	if errors.As(err, &unknownStrategy) || errors.As(err, &unknownTool) || errors.As(err, &invalidConfig) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}
