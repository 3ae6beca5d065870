package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/ports/adapter"
)

var _ adapter.BlobStorage = (*RESTStorage)(nil)

// RESTStorage implements adapter.BlobStorage over the /storage/v1 object API.
type RESTStorage struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

func NewRESTStorage(baseURL, serviceKey string) (*RESTStorage, error) {
	if baseURL == "" {
		return nil, errors.New("storage url empty")
	}
	return &RESTStorage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *RESTStorage) objectURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(bucket), escapePath(path))
}

// PublicURL is where a stored object can be fetched without credentials.
func (s *RESTStorage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, url.PathEscape(bucket), escapePath(path))
}

// Upload fails rather than overwrite an existing object.
func (s *RESTStorage) Upload(ctx context.Context, bucket, path, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(bucket, path), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	if err := s.do(req); err != nil {
		return "", fmt.Errorf("upload %s/%s: %v: %w", bucket, path, err, domain.ErrUploadFailed)
	}
	return s.PublicURL(bucket, path), nil
}

func (s *RESTStorage) Remove(ctx context.Context, bucket, path string) error {
	b, _ := json.Marshal(map[string][]string{"prefixes": {path}})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, url.PathEscape(bucket)), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *RESTStorage) do(req *http.Request) error {
	if s.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("apikey", s.serviceKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("storage: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
