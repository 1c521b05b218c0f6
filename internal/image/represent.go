package image

import (
	"strconv"

	"github.com/tierpix/service/internal/policy"
	"github.com/tierpix/service/internal/tier"
)

// Representation is the tier-dependent shape of a listed image. Sections the
// caller's tier does not permit are omitted entirely rather than nulled.
type Representation struct {
	Image      *urlEntry           `json:"image,omitempty"`
	Thumbnails []map[string]string `json:"thumbnails"`
	Binary     []urlEntry          `json:"binary,omitempty"`
}

type urlEntry struct {
	URL string `json:"url"`
}

// URLBuilder derives absolute asset URLs from the service's public base.
type URLBuilder struct {
	base string
}

// NewURLBuilder creates a URLBuilder over the given public base URL.
func NewURLBuilder(base string) *URLBuilder {
	return &URLBuilder{base: base}
}

// ImageURL addresses an original image.
func (b *URLBuilder) ImageURL(tok string) string { return b.base + "/images/" + tok }

// ThumbnailURL addresses a thumbnail.
func (b *URLBuilder) ThumbnailURL(tok string) string { return b.base + "/thumbnails/" + tok }

// BinaryURL addresses an expiring link.
func (b *URLBuilder) BinaryURL(tok string) string { return b.base + "/binary/" + tok }

// Represent encodes an image with its thumbnails and link tokens for the
// given tier. Thumbnail entries are keyed by their height value; the
// original-image URL appears only with original access; binary links appear
// only for enterprise callers and only when at least one link exists.
func Represent(b *URLBuilder, img *Image, thumbs []*Thumbnail, linkTokens []string, t *tier.Tier) Representation {
	rep := Representation{
		Thumbnails: make([]map[string]string, 0, len(thumbs)),
	}

	if policy.CanViewOriginal(t) {
		rep.Image = &urlEntry{URL: b.ImageURL(img.Token)}
	}

	for _, th := range thumbs {
		if !policy.CanViewThumbnail(t, th.Height) {
			continue
		}
		rep.Thumbnails = append(rep.Thumbnails, map[string]string{
			strconv.Itoa(th.Height): b.ThumbnailURL(th.Token),
		})
	}

	if policy.CanAccessBinary(t) && len(linkTokens) > 0 {
		rep.Binary = make([]urlEntry, 0, len(linkTokens))
		for _, tok := range linkTokens {
			rep.Binary = append(rep.Binary, urlEntry{URL: b.BinaryURL(tok)})
		}
	}

	return rep
}
