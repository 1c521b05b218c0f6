package image

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tierpix/service/internal/tier"
)

func sampleAssets() (*Image, []*Thumbnail) {
	img := &Image{ID: "img-1", Token: "img-tok"}
	thumbs := []*Thumbnail{
		{ImageID: "img-1", Height: 200, Token: "thumb-200"},
		{ImageID: "img-1", Height: 400, Token: "thumb-400"},
	}
	return img, thumbs
}

func TestRepresentPremium(t *testing.T) {
	b := NewURLBuilder("http://api.test/api/v1")
	img, thumbs := sampleAssets()

	rep := Represent(b, img, thumbs, nil, premiumTier())

	require.NotNil(t, rep.Image)
	require.Equal(t, "http://api.test/api/v1/images/img-tok", rep.Image.URL)
	require.Equal(t, []map[string]string{
		{"200": "http://api.test/api/v1/thumbnails/thumb-200"},
		{"400": "http://api.test/api/v1/thumbnails/thumb-400"},
	}, rep.Thumbnails)
	require.Empty(t, rep.Binary)
}

func TestRepresentBasicHidesOriginalAndExtraHeights(t *testing.T) {
	b := NewURLBuilder("http://api.test/api/v1")
	img, thumbs := sampleAssets()

	rep := Represent(b, img, thumbs, []string{"link-tok"}, basicTier())

	require.Nil(t, rep.Image)
	require.Equal(t, []map[string]string{
		{"200": "http://api.test/api/v1/thumbnails/thumb-200"},
	}, rep.Thumbnails)
	// Basic is not enterprise: links exist but are not represented.
	require.Empty(t, rep.Binary)
}

func TestRepresentEnterpriseIncludesBinary(t *testing.T) {
	b := NewURLBuilder("http://api.test/api/v1")
	img, thumbs := sampleAssets()
	ent := &tier.Tier{ID: 3, Name: tier.Enterprise, OriginalAccess: true, Heights: []int{200, 400}}

	rep := Represent(b, img, thumbs, []string{"l1", "l2"}, ent)

	require.Len(t, rep.Binary, 2)
	require.Equal(t, "http://api.test/api/v1/binary/l1", rep.Binary[0].URL)
}

func TestRepresentNilTier(t *testing.T) {
	b := NewURLBuilder("http://api.test/api/v1")
	img, thumbs := sampleAssets()

	rep := Represent(b, img, thumbs, []string{"l1"}, nil)

	require.Nil(t, rep.Image)
	require.Empty(t, rep.Thumbnails)
	require.Empty(t, rep.Binary)
}

func TestRepresentationJSONOmitsForbiddenSections(t *testing.T) {
	b := NewURLBuilder("http://api.test/api/v1")
	img, thumbs := sampleAssets()

	out, err := json.Marshal(Represent(b, img, thumbs, nil, basicTier()))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.NotContains(t, decoded, "image")
	require.NotContains(t, decoded, "binary")
	require.Contains(t, decoded, "thumbnails")
}
