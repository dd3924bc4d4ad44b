package storage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/logging"
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
	"image/avif": "avif",
}

// Extensions tried, in order, when deleting an image whose type is unknown.
var deleteExtensions = []string{"jpg", "png", "webp", "gif"}

// ImageExtension maps a content type to a file extension, defaulting to jpg.
func ImageExtension(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := imageExtensions[ct]; ok {
		return ext
	}
	return common.DefaultImageExt
}

// ImageKey is the blob key of a recipe's image.
func ImageKey(recipeID, ext string) string {
	return recipeID + "." + ext
}

// ImagePersister copies remote images into blob storage.
type ImagePersister struct {
	client  *fetch.Client
	blob    Blob
	timeout time.Duration
	log     *slog.Logger
}

// NewImagePersister creates an ImagePersister.
func NewImagePersister(client *fetch.Client, blob Blob, timeout time.Duration, log *slog.Logger) *ImagePersister {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ImagePersister{client: client, blob: blob, timeout: timeout, log: logging.OrDiscard(log)}
}

// Persist downloads remoteURL and stores it under the recipe's key. It
// returns the public URL, or "" on any failure. Re-persisting the same recipe
// overwrites the previous object.
func (p *ImagePersister) Persist(ctx context.Context, remoteURL, recipeID string) string {
	if strings.TrimSpace(remoteURL) == "" || recipeID == "" {
		return ""
	}
	resp, err := p.client.Get(ctx, remoteURL, p.timeout, nil)
	if err != nil {
		p.log.Warn("image download failed", "recipe_id", recipeID, "err", err)
		return ""
	}
	if len(resp.Body) == 0 {
		p.log.Warn("image download empty", "recipe_id", recipeID)
		return ""
	}
	ct := resp.ContentType()
	ext := ImageExtension(ct)
	if _, ok := imageExtensions[ct]; !ok {
		ct = "image/jpeg"
	}
	publicURL, err := p.blob.Upload(ctx, ImageKey(recipeID, ext), resp.Body, ct)
	if err != nil {
		p.log.Warn("image upload failed", "recipe_id", recipeID, "err", err)
		return ""
	}
	p.log.Debug("image persisted", "recipe_id", recipeID, "bytes", len(resp.Body), "url", publicURL)
	return publicURL
}

// Delete removes the recipe's image, trying each known extension until one
// succeeds. It reports whether anything was deleted.
func (p *ImagePersister) Delete(ctx context.Context, recipeID string) bool {
	for _, ext := range deleteExtensions {
		if err := p.blob.Delete(ctx, ImageKey(recipeID, ext)); err == nil {
			return true
		}
	}
	p.log.Debug("no image deleted", "recipe_id", recipeID)
	return false
}
