package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/common"
)

// TokenSource yields the bearer token for API calls. Implemented by the
// auth provider; returns common.ErrUnauthenticated when signed out.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// HTTPStore talks to the sync backend's JSON API.
type HTTPStore struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewHTTPStore builds a store client for the given endpoint, e.g.
// "http://127.0.0.1:8080". A nil httpClient falls back to a client with a
// modest request timeout.
func NewHTTPStore(baseURL string, tokens TokenSource, httpClient *http.Client) *HTTPStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{baseURL: baseURL, tokens: tokens, client: httpClient}
}

type upsertRequest struct {
	Record            models.HistoryRecord `json:"record"`
	ExpectedTimestamp int64                `json:"expectedTimestamp,omitempty"`
}

type upsertResponse struct {
	Timestamp int64 `json:"timestamp"`
}

type queryResponse struct {
	Documents []Document `json:"documents"`
}

func (s *HTTPStore) Upsert(ctx context.Context, record models.HistoryRecord, expectedTimestamp int64) (int64, error) {
	body, err := json.Marshal(upsertRequest{Record: record, ExpectedTimestamp: expectedTimestamp})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPut, "/api/history/"+url.PathEscape(record.ID), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return 0, err
	}

	var out upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode upsert response: %w", err)
	}
	return out.Timestamp, nil
}

func (s *HTTPStore) Query(ctx context.Context, modifiedAfter time.Time) ([]Document, error) {
	path := "/api/history"
	if !modifiedAfter.IsZero() {
		path += "?modified_after=" + strconv.FormatInt(modifiedAfter.UnixNano(), 10)
	}

	resp, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	return out.Documents, nil
}

func (s *HTTPStore) Get(ctx context.Context, id string) (*Document, error) {
	resp, err := s.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var out Document
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &out, nil
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	resp, err := s.do(ctx, http.MethodDelete, "/api/history/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp, http.StatusNoContent)
}

func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/ping", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrOffline, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping status %s", common.ErrOffline, resp.Status)
	}
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// checkStatus maps API status codes onto the shared error taxonomy.
func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return common.ErrUnauthenticated
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return common.ErrPreconditionFailed
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, string(b))
	}
}
