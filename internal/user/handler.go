package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tierpix/service/internal/middleware"
	"github.com/tierpix/service/internal/response"
	"github.com/tierpix/service/internal/tier"
)

// Handler holds HTTP handlers for user-related endpoints.
type Handler struct {
	svc     *Service
	catalog *tier.Catalog
}

// NewHandler creates a new user Handler.
func NewHandler(svc *Service, catalog *tier.Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

type profileBody struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Tier         string `json:"tier,omitempty"`
	LinkDuration int    `json:"linkDuration"`
}

type updateProfileRequest struct {
	LinkDuration *int `json:"linkDuration"`
}

// GetMe godoc
//
//	@Summary		Get current user
//	@Description	Returns the profile of the currently authenticated user, including tier name and link duration.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=profileBody}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/users/me [get]
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	u, err := h.svc.GetByID(r.Context(), userID)
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "user not found")
			return
		}
		response.InternalError(w)
		return
	}

	body := profileBody{ID: u.ID, Username: u.Username, LinkDuration: u.LinkDuration}
	if t, err := h.catalog.ForUser(r.Context(), u.TierID); err == nil && t != nil {
		body.Tier = t.Name
	}
	response.OK(w, body)
}

// UpdateMe godoc
//
//	@Summary		Update current user
//	@Description	Updates the caller's link duration. New value applies only to links generated afterwards.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=profileBody}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/users/me [patch]
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.LinkDuration == nil {
		response.BadRequest(w, "linkDuration is required")
		return
	}

	if err := h.svc.UpdateLinkDuration(r.Context(), userID, *req.LinkDuration); err != nil {
		if errors.Is(err, ErrInvalidDuration) {
			response.BadRequest(w, err.Error())
			return
		}
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "user not found")
			return
		}
		response.InternalError(w)
		return
	}

	h.GetMe(w, r)
}
