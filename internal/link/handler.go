package link

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tierpix/service/internal/image"
	"github.com/tierpix/service/internal/middleware"
	"github.com/tierpix/service/internal/policy"
	"github.com/tierpix/service/internal/response"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/user"
)

// Handler holds HTTP handlers for expiring-link endpoints.
type Handler struct {
	mgr     *Manager
	images  *image.Service
	users   *user.Service
	catalog *tier.Catalog
	urls    *image.URLBuilder
}

// NewHandler creates a new link Handler.
func NewHandler(mgr *Manager, images *image.Service, users *user.Service, catalog *tier.Catalog, urls *image.URLBuilder) *Handler {
	return &Handler{mgr: mgr, images: images, users: users, catalog: catalog, urls: urls}
}

type generatedLinkBody struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (h *Handler) requester(w http.ResponseWriter, r *http.Request) (*user.User, *tier.Tier, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return nil, nil, false
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		response.Unauthorized(w, "unauthorized")
		return nil, nil, false
	}
	t, err := h.catalog.ForUser(r.Context(), u.TierID)
	if err != nil {
		response.InternalError(w)
		return nil, nil, false
	}
	return u, t, true
}

// Generate godoc
//
//	@Summary		Generate expiring link
//	@Description	Issues a new time-bounded binary link for the image, valid for the caller's configured link duration. Enterprise tier only.
//	@Tags			links
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=generatedLinkBody}
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{token}/generate [get]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	img, err := h.images.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		response.NotFound(w, "image not found")
		return
	}
	if !policy.Owns(u.ID, img.OwnerID) {
		response.NotFound(w, "image not found")
		return
	}
	if !policy.CanAccessBinary(t) || !policy.CanViewOriginal(t) {
		response.Forbidden(w, "tier does not permit binary links")
		return
	}

	l, err := h.mgr.Generate(r.Context(), img.ID, u)
	if err != nil {
		log.Printf("link: generate for image %s failed: %v", img.ID, err)
		response.InternalError(w)
		return
	}

	response.OK(w, generatedLinkBody{
		Token: l.Token,
		URL:   h.urls.BinaryURL(l.Token),
	})
}

// GetBinary godoc
//
//	@Summary		Fetch original bytes via expiring link
//	@Description	Serves the linked image's original bytes. An expired link is deleted on this read and returns 404, as does any later use of its token.
//	@Tags			links
//	@Produce		png
//	@Produce		jpeg
//	@Security		BearerAuth
//	@Success		200	{file}		binary
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/binary/{token} [get]
func (h *Handler) GetBinary(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	l, err := h.mgr.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if IsGone(err) {
			response.NotFound(w, "link not found")
			return
		}
		response.InternalError(w)
		return
	}

	img, err := h.images.GetByID(r.Context(), l.ImageID)
	if err != nil {
		response.NotFound(w, "link not found")
		return
	}
	if !policy.Owns(u.ID, img.OwnerID) {
		response.NotFound(w, "link not found")
		return
	}
	if !policy.CanAccessBinary(t) {
		response.Forbidden(w, "tier does not permit binary access")
		return
	}

	if err := h.images.Reconcile(r.Context(), img, t); err != nil {
		response.InternalError(w)
		return
	}

	data, err := h.images.OriginalBytes(r.Context(), img)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.Bytes(w, img.Format.ContentType(), data)
}
