package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/dukamart/dukapay-gobackend/internal/models"
	"github.com/dukamart/dukapay-gobackend/internal/services"
)

type UserHandler struct {
	service   *services.UserService
	jwtSecret []byte
}

func NewUserHandler(service *services.UserService, jwtSecret []byte) *UserHandler {
	return &UserHandler{service: service, jwtSecret: jwtSecret}
}

type registerRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// CreateUser handles POST /api/user
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user := &models.User{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	}
	id, err := h.service.Register(r.Context(), user, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("Failed to create user: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginUserHandler handles POST /api/login and returns a signed session token.
func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := issueToken(h.jwtSecret, user.ID.Hex(), user.Email)
	if err != nil {
		log.Printf("Failed to sign token for user %s: %v", user.ID.Hex(), err)
		writeError(w, http.StatusInternalServerError, "Failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"user_id": user.ID.Hex(),
	})
}

// GetUsers handles GET /api/user (JWT-protected).
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, h.jwtSecret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	users, err := h.service.UserList(r.Context())
	if err != nil {
		log.Printf("Failed to fetch users: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Profile handles GET /api/me for the authenticated user.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := authorize(r, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
