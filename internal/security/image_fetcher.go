package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotImage は応答が画像でない場合のエラー。
	ErrNotImage = errors.New("response is not an image")
	// ErrImageTooLarge は応答が上限サイズを超えた場合のエラー。
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

// Image は取得した画像。
type Image struct {
	ContentType string
	Data        []byte
}

// ImageFetcher は外部の画像URLをSSRF防止付きクライアントで取得する。
type ImageFetcher struct {
	client   *http.Client
	validate func(rawURL string) error
	maxSize  int64
}

// NewImageFetcher はImageFetcherを生成する。
func NewImageFetcher(guard SSRFGuardService, timeout time.Duration, maxSize int64) *ImageFetcher {
	return &ImageFetcher{
		client:   guard.NewSafeClient(timeout),
		validate: guard.ValidateURL,
		maxSize:  maxSize,
	}
}

// Fetch は画像を取得する。image/*以外の応答と上限超過は拒否する。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if err := f.validate(rawURL); err != nil {
		return nil, fmt.Errorf("unsafe image url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, ErrNotImage
	}
	if resp.ContentLength > f.maxSize {
		return nil, ErrImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrImageTooLarge
	}

	return &Image{ContentType: mediaType, Data: data}, nil
}
