package rest

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/dmitrijs2005/orgdesk/internal/server/services"
)

type registerRequest struct {
	Email            string  `json:"email" validate:"required,email"`
	Password         string  `json:"password" validate:"required,min=8"`
	FirstName        *string `json:"firstName" validate:"omitempty,max=50"`
	LastName         *string `json:"lastName" validate:"omitempty,max=50"`
	OrganizationName string  `json:"organizationName" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// tokenRequest carries a refresh token. A missing token is reported by the
// service, not by validation.
type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
	services.TokenPair
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.auth.Register(r.Context(), services.RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "Organization does not exist")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{
		Message:   "User created successfully",
		User:      res.User,
		TokenPair: res.TokenPair,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err, "Invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, authResponse{
		Message:   "Login successful",
		User:      res.User,
		TokenPair: res.TokenPair,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err, "Invalid or expired refresh token")
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeServiceError(w, r, err, "Refresh token is required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func decodeTokenRequest(w http.ResponseWriter, r *http.Request) (tokenRequest, bool) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Refresh token is required")
		return req, false
	}
	return req, true
}
