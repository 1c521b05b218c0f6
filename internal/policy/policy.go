// Package policy holds the per-request authorization predicates. Each
// predicate is evaluated against the requester's freshly loaded tier, never
// a cached one, so privilege changes apply on the next request.
package policy

import "github.com/tierpix/service/internal/tier"

// Owns reports whether the requester owns the asset.
func Owns(requesterID, ownerID string) bool {
	return requesterID != "" && requesterID == ownerID
}

// CanViewThumbnail reports whether the tier permits thumbnails of the given
// height. A nil tier permits nothing.
func CanViewThumbnail(t *tier.Tier, height int) bool {
	return t != nil && t.PermitsHeight(height)
}

// CanViewOriginal reports whether the tier grants original-image access.
func CanViewOriginal(t *tier.Tier) bool {
	return t != nil && t.OriginalAccess
}

// CanAccessBinary reports whether the tier may generate and follow expiring
// binary links. Only the top enterprise tier qualifies.
func CanAccessBinary(t *tier.Tier) bool {
	return t != nil && t.Name == tier.Enterprise
}
