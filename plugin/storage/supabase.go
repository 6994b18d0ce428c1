package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Supabase talks to the Supabase Storage REST API with the service role key.
type Supabase struct {
	baseURL    string
	bucket     string
	serviceKey string
	client     *http.Client
}

func NewSupabase(baseURL, bucket, serviceKey string, client *http.Client) (*Supabase, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("supabase storage requires a base url")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Supabase{
		baseURL:    baseURL,
		bucket:     bucket,
		serviceKey: serviceKey,
		client:     client,
	}, nil
}

func (s *Supabase) Bucket() string {
	return s.bucket
}

func (s *Supabase) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
}

func (s *Supabase) authorize(req *http.Request) {
	if s.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("apikey", s.serviceKey)
	}
}

func (s *Supabase) Download(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create download request")
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download object %s", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || isNotFoundBody(resp) {
		return nil, errors.Wrapf(ErrObjectNotFound, "key %s", key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download object %s: status %d: %s", key, resp.StatusCode, readMessage(resp.Body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read object %s", key)
	}
	return data, nil
}

func (s *Supabase) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if contentType == "" {
		contentType = AudioContentType
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to create upload request")
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to upload object %s", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	// Objects are content addressed, so a duplicate already holds the same bytes.
	if resp.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(string(body)), "duplicate") {
		return nil
	}
	return errors.Errorf("upload object %s: status %d: %s", key, resp.StatusCode, readMessage(bytes.NewReader(body)))
}

func (s *Supabase) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return AssetExists(ctx, s.client, s.PublicURL(key)), nil
}

func (s *Supabase) PublicURL(key string) string {
	// baseURL is checked non-empty by NewSupabase.
	publicURL, _ := ResolveObjectURL(s.baseURL, s.bucket, key)
	return publicURL
}

// Storage answers 400 with a JSON body for some missing objects.
func isNotFoundBody(resp *http.Response) bool {
	if resp.StatusCode != http.StatusBadRequest {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	var payload struct {
		StatusCode string `json:"statusCode"`
		Error      string `json:"error"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return false
	}
	return payload.StatusCode == "404" || strings.EqualFold(payload.Error, "not_found")
}

func readMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
