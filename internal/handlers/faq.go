package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dukamart/dukapay-gobackend/internal/models"
	"github.com/dukamart/dukapay-gobackend/internal/services"
)

// FAQHandler handles HTTP requests for FAQ entries
type FAQHandler struct {
	service   *services.FAQService
	jwtSecret []byte
}

// NewFAQHandler creates a new FAQHandler
func NewFAQHandler(service *services.FAQService, jwtSecret []byte) *FAQHandler {
	return &FAQHandler{service: service, jwtSecret: jwtSecret}
}

// CreateFAQ handles POST /api/faq
func (h *FAQHandler) CreateFAQ(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, h.jwtSecret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var faq models.FAQ
	if err := json.NewDecoder(r.Body).Decode(&faq); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if faq.Question == "" || faq.Answer == "" {
		writeError(w, http.StatusBadRequest, "Question and answer are required")
		return
	}

	id, err := h.service.CreateFAQ(r.Context(), &faq)
	if err != nil {
		log.Printf("Failed to create FAQ: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create FAQ")
		return
	}

	faq.ID, _ = primitive.ObjectIDFromHex(id)
	writeJSON(w, http.StatusCreated, faq)
}

// GetFAQs handles GET /api/faqs
func (h *FAQHandler) GetFAQs(w http.ResponseWriter, r *http.Request) {
	faqs, err := h.service.FAQList(r.Context())
	if err != nil {
		log.Printf("Failed to fetch FAQs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch FAQs")
		return
	}

	writeJSON(w, http.StatusOK, faqs)
}

// GetFAQ handles GET /api/faq/{faqID}
func (h *FAQHandler) GetFAQ(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["faqID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid FAQ ID")
		return
	}

	faq, err := h.service.GetFAQByID(r.Context(), id)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			writeError(w, http.StatusNotFound, "FAQ not found")
		} else {
			log.Printf("Failed to fetch FAQ %s: %v", id.Hex(), err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch FAQ")
		}
		return
	}

	writeJSON(w, http.StatusOK, faq)
}

// UpdateFAQ handles PATCH /api/faq/{faqID}
func (h *FAQHandler) UpdateFAQ(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, h.jwtSecret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["faqID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid FAQ ID")
		return
	}

	var faq models.FAQ
	if err := json.NewDecoder(r.Body).Decode(&faq); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	faq.ID = id
	if err := h.service.UpdateFAQ(r.Context(), &faq); err != nil {
		if err == mongo.ErrNoDocuments {
			writeError(w, http.StatusNotFound, "FAQ not found")
		} else {
			log.Printf("Failed to update FAQ %s: %v", id.Hex(), err)
			writeError(w, http.StatusInternalServerError, "Failed to update FAQ")
		}
		return
	}

	writeJSON(w, http.StatusOK, faq)
}

// DeleteFAQ handles DELETE /api/faq/{faqID}
func (h *FAQHandler) DeleteFAQ(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, h.jwtSecret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["faqID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid FAQ ID")
		return
	}

	if err := h.service.DeleteFAQ(r.Context(), id); err != nil {
		if err == mongo.ErrNoDocuments {
			writeError(w, http.StatusNotFound, "FAQ not found")
		} else {
			log.Printf("Failed to delete FAQ %s: %v", id.Hex(), err)
			writeError(w, http.StatusInternalServerError, "Failed to delete FAQ")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
