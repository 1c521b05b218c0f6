package image

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tierpix/service/internal/codec"
	"github.com/tierpix/service/internal/middleware"
	"github.com/tierpix/service/internal/policy"
	"github.com/tierpix/service/internal/response"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/user"
)

// maxUploadBytes caps a single upload body.
const maxUploadBytes = 32 << 20

// Handler holds HTTP handlers for image and thumbnail endpoints.
type Handler struct {
	svc     *Service
	users   *user.Service
	catalog *tier.Catalog
	links   LinkSource
	urls    *URLBuilder
}

// NewHandler creates a new image Handler.
func NewHandler(svc *Service, users *user.Service, catalog *tier.Catalog, links LinkSource, urls *URLBuilder) *Handler {
	return &Handler{svc: svc, users: users, catalog: catalog, links: links, urls: urls}
}

// requester loads the authenticated user and their current tier. The tier is
// resolved fresh on every request so privilege changes apply immediately.
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

type base64UploadRequest struct {
	Image string `json:"image"`
}

// decodeUpload extracts image bytes from either a multipart form field named
// "image" or a JSON body carrying the base64-encoded payload.
func decodeUpload(r *http.Request) ([]byte, codec.Format, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", errors.New("multipart field \"image\" is required")
		}
		defer file.Close()

		format, err := codec.FormatFromContentType(header.Header.Get("Content-Type"))
		if err != nil {
			return nil, "", err
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, format, nil
	}

	var req base64UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", errors.New("invalid request body")
	}
	if req.Image == "" {
		return nil, "", errors.New("image is required")
	}
	format, err := codec.SniffBase64Format(req.Image)
	if err != nil {
		return nil, "", err
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, "", errors.New("invalid base64 image data")
	}
	return data, format, nil
}

// represent builds the tiered representation for one image.
func (h *Handler) represent(r *http.Request, img *Image, t *tier.Tier) (Representation, error) {
	thumbs, err := h.svc.Thumbnails(r.Context(), img)
	if err != nil {
		return Representation{}, err
	}
	linkTokens, err := h.links.TokensByImage(r.Context(), img.ID)
	if err != nil {
		return Representation{}, err
	}
	return Represent(h.urls, img, thumbs, linkTokens, t), nil
}

// Create godoc
//
//	@Summary		Upload image
//	@Description	Accepts a PNG or JPEG as multipart field "image" or JSON {"image": "<base64>"}. Thumbnails for the caller's tier are generated before the response returns.
//	@Tags			images
//	@Accept			mpfd
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Success		201	{object}	response.Envelope{data=Representation}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	data, format, err := decodeUpload(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	img, err := h.svc.Upload(r.Context(), u, t, data, format)
	if err != nil {
		log.Printf("image: upload failed for user %s: %v", u.ID, err)
		response.InternalError(w)
		return
	}

	rep, err := h.represent(r, img, t)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.Created(w, rep)
}

// List godoc
//
//	@Summary		List images
//	@Description	Returns the caller's images. Each image is reconciled against the caller's current tier before encoding, so a tier change reflects immediately.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Representation}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	images, err := h.svc.ListByOwner(r.Context(), u.ID)
	if err != nil {
		response.InternalError(w)
		return
	}

	reps := make([]Representation, 0, len(images))
	for _, img := range images {
		if err := h.svc.Reconcile(r.Context(), img, t); err != nil {
			log.Printf("image: reconcile %s on list failed: %v", img.ID, err)
			response.InternalError(w)
			return
		}
		rep, err := h.represent(r, img, t)
		if err != nil {
			response.InternalError(w)
			return
		}
		reps = append(reps, rep)
	}
	response.OK(w, reps)
}

// GetOriginal godoc
//
//	@Summary		Fetch original image bytes
//	@Description	Serves the original bytes. Requires a tier with original-image access. Unknown tokens and images owned by others both return 404.
//	@Tags			images
//	@Produce		png
//	@Produce		jpeg
//	@Security		BearerAuth
//	@Success		200	{file}		binary
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{token} [get]
func (h *Handler) GetOriginal(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	img, ok := h.ownedImage(w, r, u, chi.URLParam(r, "token"))
	if !ok {
		return
	}

	if err := h.svc.Reconcile(r.Context(), img, t); err != nil {
		response.InternalError(w)
		return
	}

	if !policy.CanViewOriginal(t) {
		response.Forbidden(w, "tier does not permit original image access")
		return
	}

	data, err := h.svc.OriginalBytes(r.Context(), img)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.Bytes(w, img.Format.ContentType(), data)
}

// Replace godoc
//
//	@Summary		Replace image bytes
//	@Description	Swaps the stored bytes for a new PNG or JPEG. All thumbnails are regenerated from the new source; the image token is unchanged.
//	@Tags			images
//	@Accept			mpfd
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=Representation}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{token} [put]
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	img, ok := h.ownedImage(w, r, u, chi.URLParam(r, "token"))
	if !ok {
		return
	}

	data, format, err := decodeUpload(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	replaced, err := h.svc.Replace(r.Context(), img, t, data, format)
	if err != nil {
		log.Printf("image: replace %s failed: %v", img.ID, err)
		response.InternalError(w)
		return
	}

	rep, err := h.represent(r, replaced, t)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, rep)
}

// Delete godoc
//
//	@Summary		Delete image
//	@Description	Removes the image and, by cascade, its thumbnails and expiring links.
//	@Tags			images
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{token} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.requester(w, r)
	if !ok {
		return
	}

	img, ok := h.ownedImage(w, r, u, chi.URLParam(r, "token"))
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), img); err != nil {
		response.InternalError(w)
		return
	}
	response.NoContent(w)
}

// GetThumbnail godoc
//
//	@Summary		Fetch thumbnail bytes
//	@Description	Serves a thumbnail by token. The parent image is reconciled first, so a height the caller's tier no longer permits may be pruned and 404 here.
//	@Tags			images
//	@Produce		png
//	@Produce		jpeg
//	@Security		BearerAuth
//	@Success		200	{file}		binary
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/thumbnails/{token} [get]
func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	u, t, ok := h.requester(w, r)
	if !ok {
		return
	}

	tok := chi.URLParam(r, "token")
	th, err := h.svc.GetThumbnailByToken(r.Context(), tok)
	if err != nil {
		response.NotFound(w, "thumbnail not found")
		return
	}

	img, err := h.svc.GetByID(r.Context(), th.ImageID)
	if err != nil {
		response.NotFound(w, "thumbnail not found")
		return
	}
	if !policy.Owns(u.ID, img.OwnerID) {
		response.NotFound(w, "thumbnail not found")
		return
	}

	if err := h.svc.Reconcile(r.Context(), img, t); err != nil {
		response.InternalError(w)
		return
	}

	// Reconciliation may have deleted the very thumbnail requested.
	th, err = h.svc.GetThumbnailByToken(r.Context(), tok)
	if err != nil {
		response.NotFound(w, "thumbnail not found")
		return
	}

	if !policy.CanViewThumbnail(t, th.Height) {
		response.Forbidden(w, "tier does not permit this thumbnail height")
		return
	}

	data, err := h.svc.ThumbnailBytes(r.Context(), th)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.Bytes(w, img.Format.ContentType(), data)
}

// ownedImage resolves a token to an image owned by u. Unknown tokens and
// foreign ownership are indistinguishable to the caller: both are 404.
func (h *Handler) ownedImage(w http.ResponseWriter, r *http.Request, u *user.User, tok string) (*Image, bool) {
	img, err := h.svc.GetByToken(r.Context(), tok)
	if err != nil {
		response.NotFound(w, "image not found")
		return nil, false
	}
	if !policy.Owns(u.ID, img.OwnerID) {
		response.NotFound(w, "image not found")
		return nil, false
	}
	return img, true
}
