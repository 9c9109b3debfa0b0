// Package storage provides S3 storage integration.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // silhouette formats
	_ "image/png"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/model"
)

// Object key prefixes.
const (
	MaskPrefix    = "masks/"
	LayoutPrefix  = "layouts/"
	OverlayPrefix = "overlays/"
)

// Defaults for S3Client.
const (
	DefaultRetries          = 3
	DefaultRetryDelay       = 200 * time.Millisecond
	DefaultMaxMaskDimension = mask.DefaultMaxDimension
)

// ErrNotFound is returned by S3ClientInterface implementations when a key does not exist.
// It is never retried.
var ErrNotFound = errors.New("object not found")

// S3ClientInterface defines the interface for S3 operations.
type S3ClientInterface interface {
	GetObject(key string) ([]byte, error)
	PutObject(key string, data []byte) error
	ListObjects(prefix string) ([]string, error)
}

// S3Client wraps S3 operations for masks, layouts and overlays.
type S3Client struct {
	client        S3ClientInterface
	bucket        string
	cloudfrontURL string
	retries       uint64
	retryDelay    time.Duration
	maxMaskDim    int
}

// NewS3Client creates a new S3Client.
func NewS3Client(client S3ClientInterface, bucket string, cloudfrontURL string) *S3Client {
	return &S3Client{
		client:        client,
		bucket:        bucket,
		cloudfrontURL: strings.TrimSuffix(cloudfrontURL, "/"),
		retries:       DefaultRetries,
		retryDelay:    DefaultRetryDelay,
		maxMaskDim:    DefaultMaxMaskDimension,
	}
}

// WithRetry sets how many times a failed call is retried and the delay between tries.
func (c *S3Client) WithRetry(retries uint64, delay time.Duration) *S3Client {
	c.retries = retries
	c.retryDelay = delay
	return c
}

// WithMaxMaskDimension sets the largest mask side kept after loading.
func (c *S3Client) WithMaxMaskDimension(n int) *S3Client {
	c.maxMaskDim = n
	return c
}

// LoadMask fetches a silhouette and returns it as a mask.
//
// Keys ending in .json hold a mask payload {width,height,data}. Any other key is
// decoded as a png, jpeg or webp image whose alpha channel becomes the mask.
// Masks larger than the configured dimension are downsampled.
func (c *S3Client) LoadMask(ctx context.Context, key string) (*mask.Mask, error) {
	data, err := c.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get mask %s: %w", key, err)
	}

	var m *mask.Mask
	if strings.EqualFold(path.Ext(key), ".json") {
		var p mask.Payload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse mask payload %s: %w", key, err)
		}
		m, err = mask.Decode(p)
		if err != nil {
			return nil, fmt.Errorf("failed to decode mask payload %s: %w", key, err)
		}
	} else {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode silhouette image %s: %w", key, err)
		}
		m = mask.FromImage(img, 0)
	}

	return m.Fit(c.maxMaskDim), nil
}

// ListMasks returns the keys of all stored silhouettes.
func (c *S3Client) ListMasks(ctx context.Context) ([]string, error) {
	keys, err := backoff.RetryWithData(func() ([]string, error) {
		return c.client.ListObjects(MaskPrefix)
	}, c.policy(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list masks: %w", err)
	}
	return keys, nil
}

// SaveItem writes one committed placement to layouts/<canvas>/<item>.json.
func (c *S3Client) SaveItem(ctx context.Context, canvasID string, p model.ItemPlacement) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode placement: %w", err)
	}
	if err := c.put(ctx, LayoutKey(canvasID, p.ID), data); err != nil {
		return fmt.Errorf("failed to save placement %s: %w", p.ID, err)
	}
	return nil
}

// LoadItem reads a placement written by SaveItem.
func (c *S3Client) LoadItem(ctx context.Context, canvasID, itemID string) (model.ItemPlacement, error) {
	var p model.ItemPlacement
	data, err := c.get(ctx, LayoutKey(canvasID, itemID))
	if err != nil {
		return p, fmt.Errorf("failed to get placement %s: %w", itemID, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse placement %s: %w", itemID, err)
	}
	return p, nil
}

// UploadOverlay uploads a rendered overlay PNG and returns its CloudFront URL.
func (c *S3Client) UploadOverlay(ctx context.Context, png []byte) (string, error) {
	key := OverlayPrefix + uuid.New().String() + ".png"

	if err := c.put(ctx, key, png); err != nil {
		return "", fmt.Errorf("failed to upload overlay: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.cloudfrontURL, key)
	return url, nil
}

// LayoutKey returns the object key of an item placement.
func LayoutKey(canvasID, itemID string) string {
	return LayoutPrefix + canvasID + "/" + itemID + ".json"
}

func (c *S3Client) get(ctx context.Context, key string) ([]byte, error) {
	return backoff.RetryWithData(func() ([]byte, error) {
		data, err := c.client.GetObject(key)
		if errors.Is(err, ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}, c.policy(ctx))
}

func (c *S3Client) put(ctx context.Context, key string, data []byte) error {
	return backoff.Retry(func() error {
		return c.client.PutObject(key, data)
	}, c.policy(ctx))
}

func (c *S3Client) policy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), c.retries), ctx)
}
