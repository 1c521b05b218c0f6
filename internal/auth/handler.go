package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tierpix/service/internal/response"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"s3cret"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" example:"eyJhbGci..."`
}

// Login godoc
//
//	@Summary		Log in
//	@Description	Verify username and password, returning an access/refresh JWT pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	response.Envelope{data=TokenPair}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		response.BadRequest(w, "username and password are required")
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, pair)
}

// Refresh godoc
//
//	@Summary		Refresh tokens
//	@Description	Exchange a valid refresh token for a new access/refresh pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		refreshRequest	true	"Refresh token"
//	@Success		200		{object}	response.Envelope{data=TokenPair}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Refresh == "" {
		response.BadRequest(w, "refresh token is required")
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.Refresh)
	if errors.Is(err, ErrInvalidRefreshToken) {
		response.Unauthorized(w, "invalid or expired refresh token")
		return
	}
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, pair)
}
