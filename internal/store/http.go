package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

// HTTPStore is a Store client over the documents API.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPStore creates a client for the store server at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type modifiedAtResponse struct {
	ModifiedAt time.Time `json:"modifiedAt"`
}

func (s *HTTPStore) List(ctx context.Context) ([]models.DocumentInfo, error) {
	var infos []models.DocumentInfo
	if err := s.do(ctx, http.MethodGet, "/documents", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *HTTPStore) Create(ctx context.Context, doc *models.Document) error {
	var created models.Document
	if err := s.do(ctx, http.MethodPost, "/documents", doc, &created); err != nil {
		return err
	}
	doc.CreatedAt = created.CreatedAt
	doc.ModifiedAt = created.ModifiedAt
	return nil
}

func (s *HTTPStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *HTTPStore) Put(ctx context.Context, doc *models.Document) (time.Time, error) {
	if doc == nil || doc.ID == "" {
		return time.Time{}, ErrNotFound
	}
	var out modifiedAtResponse
	if err := s.do(ctx, http.MethodPut, "/documents/"+url.PathEscape(doc.ID), doc, &out); err != nil {
		return time.Time{}, err
	}
	return out.ModifiedAt, nil
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
}

func (s *HTTPStore) ModifiedAt(ctx context.Context, id string) (time.Time, error) {
	var out modifiedAtResponse
	if err := s.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/modifiedAt", nil, &out); err != nil {
		return time.Time{}, err
	}
	return out.ModifiedAt, nil
}

func (s *HTTPStore) GetHistory(ctx context.Context, id string) (*history.Stack, error) {
	var raw json.RawMessage
	if err := s.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/history", nil, &raw); err != nil {
		return nil, err
	}
	stack, err := history.DecodeStack(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	return stack, nil
}

func (s *HTTPStore) PutHistory(ctx context.Context, id string, stack *history.Stack) error {
	if id == "" || stack == nil {
		return ErrNotFound
	}
	return s.do(ctx, http.MethodPut, "/documents/"+url.PathEscape(id)+"/history", stack, nil)
}

// do issues a JSON request and decodes the response into out when non-nil.
// A 404 maps to ErrNotFound and a 409 to ErrAlreadyExists so callers can
// branch on the store's sentinel errors.
func (s *HTTPStore) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		enc, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(enc)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyExists
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("request %s failed: %s (read body: %w)", path, resp.Status, readErr)
		}
		if len(msg) > 0 {
			return fmt.Errorf("request %s failed: %s (%s)", path, resp.Status, strings.TrimSpace(string(msg)))
		}
		return fmt.Errorf("request %s failed: %s", path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
