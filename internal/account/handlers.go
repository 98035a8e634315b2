package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 4096

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Handler serves the account endpoints.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

// NewHandler returns the HTTP handler for svc.
func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: logger}
}

// Mount registers the account routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/register", h.register)
	r.Post("/api/login", h.login)
	r.Get("/api/users", h.users)
	r.Get("/users.js", h.usersScript)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	c, ok := h.decode(w, r)
	if !ok {
		return
	}

	err := h.svc.Register(c)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Success: true})
	case errors.Is(err, ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, response{Message: "Username and password required."})
	case errors.Is(err, ErrUserExists):
		writeJSON(w, http.StatusConflict, response{Message: "Username already exists."})
	default:
		h.log.Error().Err(err).Msg("register account")
		writeJSON(w, http.StatusInternalServerError, response{Message: "Internal error."})
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	c, ok := h.decode(w, r)
	if !ok {
		return
	}

	token, err := h.svc.Login(c)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Success: true, Token: token})
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, response{Message: "Invalid username or password."})
	default:
		h.log.Error().Err(err).Msg("login")
		writeJSON(w, http.StatusInternalServerError, response{Message: "Internal error."})
	}
}

func (h *Handler) users(w http.ResponseWriter, _ *http.Request) {
	names, err := h.svc.Usernames()
	if err != nil {
		h.log.Error().Err(err).Msg("list users")
		writeJSON(w, http.StatusInternalServerError, response{Message: "Internal error."})
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// usersScript serves the user directory as a script for the browser client.
func (h *Handler) usersScript(w http.ResponseWriter, _ *http.Request) {
	names, err := h.svc.Usernames()
	if err != nil {
		h.log.Error().Err(err).Msg("list users")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}

	encoded, err := json.Marshal(names)
	if err != nil {
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	_, _ = fmt.Fprintf(w, "const allUsers = %s;", encoded)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Credentials, bool) {
	var c Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Username and password required."})
		return Credentials{}, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
