// Package handlers contains the HTTP surface of the voice assistant
// backend. The voice platform registers our tools endpoint as a webhook
// tool on its AI assistant; when the assistant's LLM decides to book,
// check, cancel, or move an appointment it calls this endpoint and speaks
// the returned message to the caller.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/tools"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// VoiceToolEvent is the top-level webhook payload for a tool invocation.
type VoiceToolEvent struct {
	// CallID groups tool calls within a single phone call.
	CallID string `json:"call_id,omitempty"`
	// From is the caller's phone number (E.164).
	From string `json:"from,omitempty"`
	// To is the clinic number that received the call (E.164).
	To string `json:"to,omitempty"`
	// Payload holds the tool-specific data.
	Payload VoiceToolPayload `json:"payload,omitempty"`
}

// VoiceToolPayload carries the tool invocation details.
type VoiceToolPayload struct {
	// ToolName is the name of the webhook tool being invoked.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCallID must be echoed back so the platform can correlate the
	// result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Arguments is a map of named arguments supplied by the assistant.
	Arguments map[string]string `json:"arguments,omitempty"`
}

// VoiceToolResponse is the JSON body returned to the voice platform. The
// assistant's TTS engine converts Result.Message into speech.
type VoiceToolResponse struct {
	ToolCallID string       `json:"tool_call_id"`
	Result     tools.Result `json:"result"`
}

// VoiceToolErrorResponse is returned when the event itself is unusable.
type VoiceToolErrorResponse struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Error      string `json:"error"`
}

// clinicResolver resolves clinic configuration from the called number.
type clinicResolver interface {
	LookupByNumber(ctx context.Context, number string) (string, error)
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// toolDispatcher runs a named tool.
type toolDispatcher interface {
	Dispatch(ctx context.Context, cfg *clinic.Config, tool string, args map[string]string, cc tools.CallContext) tools.Result
}

// VoiceToolsHandler handles tool invocations from the voice platform.
type VoiceToolsHandler struct {
	clinics clinicResolver
	engine  toolDispatcher
	logger  *logging.Logger
}

// NewVoiceToolsHandler creates the webhook handler.
func NewVoiceToolsHandler(clinics clinicResolver, engine toolDispatcher, logger *logging.Logger) *VoiceToolsHandler {
	if clinics == nil {
		panic("handlers: clinic resolver required")
	}
	if engine == nil {
		panic("handlers: tool engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceToolsHandler{clinics: clinics, engine: engine, logger: logger}
}

// HandleToolCall is the HTTP handler for POST /webhooks/voice/tools.
func (h *VoiceToolsHandler) HandleToolCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice-tools: failed to read body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var event VoiceToolEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("voice-tools: failed to parse event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	h.logger.Info("voice-tools: received event",
		"call_id", event.CallID,
		"from", event.From,
		"to", event.To,
		"tool_name", event.Payload.ToolName,
	)

	if event.Payload.ToolName == "" {
		h.writeError(w, event.Payload.ToolCallID, "no tool name provided", http.StatusBadRequest)
		return
	}

	cfg, err := h.resolveClinic(ctx, normalizeE164(event.To))
	if err != nil {
		h.logger.Warn("voice-tools: clinic lookup failed", "to", event.To, "error", err)
		h.writeResult(w, event.Payload.ToolCallID, tools.Result{
			Success: false,
			Error:   "clinic_not_found",
			Message: "I'm sorry, I can't reach the clinic's schedule right now.",
		})
		return
	}

	result := h.engine.Dispatch(ctx, cfg, event.Payload.ToolName, event.Payload.Arguments, tools.CallContext{
		CallID:       event.CallID,
		CallerNumber: normalizeE164(event.From),
	})

	h.writeResult(w, event.Payload.ToolCallID, result)
}

// resolveClinic finds the clinic configuration by the called phone number.
func (h *VoiceToolsHandler) resolveClinic(ctx context.Context, toNumber string) (*clinic.Config, error) {
	clinicID, err := h.clinics.LookupByNumber(ctx, toNumber)
	if err != nil {
		return nil, fmt.Errorf("lookup clinic by number %s: %w", toNumber, err)
	}
	cfg, err := h.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("get clinic config for %s: %w", clinicID, err)
	}
	return cfg, nil
}

func (h *VoiceToolsHandler) writeResult(w http.ResponseWriter, toolCallID string, result tools.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(VoiceToolResponse{ToolCallID: toolCallID, Result: result}); err != nil {
		h.logger.Error("voice-tools: failed to encode response", "error", err)
	}
}

func (h *VoiceToolsHandler) writeError(w http.ResponseWriter, toolCallID, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(VoiceToolErrorResponse{ToolCallID: toolCallID, Error: msg}); err != nil {
		h.logger.Error("voice-tools: failed to encode error", "error", err)
	}
}

// normalizeE164 strips spacing and ensures a leading plus so numbers
// compare consistently against stored clinic numbers.
func normalizeE164(number string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(number))
	if cleaned == "" {
		return ""
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	return cleaned
}
