package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tierpix/service/internal/codec"
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new image Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateImage inserts a new image row.
func (r *Repository) CreateImage(ctx context.Context, img *Image) (*Image, error) {
	out := &Image{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO images (user_id, token, format, object_key)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, token, format, object_key, created_at, updated_at`,
		img.OwnerID, img.Token, img.Format, img.ObjectKey,
	).Scan(&out.ID, &out.OwnerID, &out.Token, &out.Format, &out.ObjectKey, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	return out, nil
}

// GetImageByToken fetches an image by its opaque token.
func (r *Repository) GetImageByToken(ctx context.Context, token string) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, token, format, object_key, created_at, updated_at
		 FROM images WHERE token = $1`,
		token,
	).Scan(&img.ID, &img.OwnerID, &img.Token, &img.Format, &img.ObjectKey, &img.CreatedAt, &img.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image by token: %w", err)
	}
	return img, nil
}

// GetImageByID fetches an image by its internal ID.
func (r *Repository) GetImageByID(ctx context.Context, id string) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, token, format, object_key, created_at, updated_at
		 FROM images WHERE id = $1`,
		id,
	).Scan(&img.ID, &img.OwnerID, &img.Token, &img.Format, &img.ObjectKey, &img.CreatedAt, &img.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image by id: %w", err)
	}
	return img, nil
}

// ListImagesByOwner returns all images owned by the user, oldest first.
func (r *Repository) ListImagesByOwner(ctx context.Context, ownerID string) ([]*Image, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, token, format, object_key, created_at, updated_at
		 FROM images WHERE user_id = $1 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img := &Image{}
		if err := rows.Scan(&img.ID, &img.OwnerID, &img.Token, &img.Format, &img.ObjectKey, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// UpdateImageObject points the image at replacement bytes. The token is
// immutable: re-uploads keep the image's external address.
func (r *Repository) UpdateImageObject(ctx context.Context, id string, format codec.Format, objectKey string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE images SET format = $2, object_key = $3, updated_at = NOW() WHERE id = $1`,
		id, format, objectKey,
	)
	if err != nil {
		return fmt.Errorf("update image object: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteImage removes the image row; thumbnails and expiring links cascade.
func (r *Repository) DeleteImage(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListThumbnails returns the image's thumbnails ordered by height.
func (r *Repository) ListThumbnails(ctx context.Context, imageID string) ([]*Thumbnail, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, image_id, height, token, object_key, created_at
		 FROM thumbnails WHERE image_id = $1 ORDER BY height`,
		imageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	defer rows.Close()

	var thumbs []*Thumbnail
	for rows.Next() {
		t := &Thumbnail{}
		if err := rows.Scan(&t.ID, &t.ImageID, &t.Height, &t.Token, &t.ObjectKey, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thumbnail: %w", err)
		}
		thumbs = append(thumbs, t)
	}
	return thumbs, rows.Err()
}

// GetThumbnailByToken fetches a thumbnail by its opaque token.
func (r *Repository) GetThumbnailByToken(ctx context.Context, token string) (*Thumbnail, error) {
	t := &Thumbnail{}
	err := r.db.QueryRow(ctx,
		`SELECT id, image_id, height, token, object_key, created_at
		 FROM thumbnails WHERE token = $1`,
		token,
	).Scan(&t.ID, &t.ImageID, &t.Height, &t.Token, &t.ObjectKey, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thumbnail by token: %w", err)
	}
	return t, nil
}

// CreateThumbnail inserts a thumbnail row. The unique (image_id, height)
// constraint turns racing creates into ErrDuplicateHeight.
func (r *Repository) CreateThumbnail(ctx context.Context, t *Thumbnail) (*Thumbnail, error) {
	out := &Thumbnail{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO thumbnails (image_id, height, token, object_key)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, image_id, height, token, object_key, created_at`,
		t.ImageID, t.Height, t.Token, t.ObjectKey,
	).Scan(&out.ID, &out.ImageID, &out.Height, &out.Token, &out.ObjectKey, &out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateHeight
		}
		return nil, fmt.Errorf("create thumbnail: %w", err)
	}
	return out, nil
}

// DeleteThumbnailsByHeights removes the image's thumbnails at the given
// heights and returns their object keys.
func (r *Repository) DeleteThumbnailsByHeights(ctx context.Context, imageID string, heights []int) ([]string, error) {
	if len(heights) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`DELETE FROM thumbnails WHERE image_id = $1 AND height = ANY($2)
		 RETURNING object_key`,
		imageID, heights,
	)
	if err != nil {
		return nil, fmt.Errorf("delete thumbnails by height: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

// DeleteAllThumbnails removes every thumbnail of the image and returns their
// object keys. Used by full reconciliation after a byte replacement.
func (r *Repository) DeleteAllThumbnails(ctx context.Context, imageID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM thumbnails WHERE image_id = $1 RETURNING object_key`,
		imageID,
	)
	if err != nil {
		return nil, fmt.Errorf("delete all thumbnails: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func collectKeys(rows pgx.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
