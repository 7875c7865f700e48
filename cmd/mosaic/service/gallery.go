package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/objectstore"
)

// Gallery lists the stored images of the upload container
type Gallery struct {
	store     objectstore.Store
	container string
	timeout   time.Duration
	log       *logger.Logger
}

// NewGallery creates the listing service
func NewGallery(store objectstore.Store, container string, timeout time.Duration, log *logger.Logger) *Gallery {
	return &Gallery{store: store, container: container, timeout: timeout, log: log}
}

// Images returns every stored image. A listing error discards what was
// read so far.
func (g *Gallery) Images(ctx context.Context) ([]models.StoredImage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	images := []models.StoredImage{}
	for ref, err := range g.store.ListObjects(ctx, g.container) {
		if err != nil {
			g.log.WithContext(ctx).Error("listing container failed", "container", g.container, "error", err)
			return nil, fmt.Errorf("list %s: %w", g.container, err)
		}
		images = append(images, models.StoredImage{
			Name:      ref.Name,
			Container: ref.Container,
			SizeBytes: ref.SizeBytes,
			URL:       ref.URL,
		})
	}
	return images, nil
}

// URLs returns the public URL of every stored image
func (g *Gallery) URLs(ctx context.Context) ([]string, error) {
	images, err := g.Images(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, img.URL)
	}
	return urls, nil
}
