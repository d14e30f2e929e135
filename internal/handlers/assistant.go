package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/dukamart/dukapay-gobackend/internal/services"
)

type AssistantHandler struct {
	service *services.AssistantService
}

func NewAssistantHandler(service *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{service: service}
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask handles POST /api/chatbot/ask
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := h.service.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, "No question provided")
			return
		}
		log.Printf("Assistant request failed: %v", err)
		writeError(w, http.StatusBadGateway, "Sorry, I'm having trouble processing your request. Please try again.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
