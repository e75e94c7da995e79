package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/okarpov/lingohist/internal/common"
)

// HTTPProvider authenticates against the sync backend and holds the
// resulting session in memory.
type HTTPProvider struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	account   *Account
	token     string
	listeners []func(*Account)
}

func NewHTTPProvider(baseURL string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, client: httpClient}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

// SignUp registers a new account. It does not sign the user in.
func (p *HTTPProvider) SignUp(ctx context.Context, email, password string) error {
	resp, err := p.post(ctx, "/api/auth/register", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return common.ErrEmailAlreadyExists
	default:
		return unexpectedStatus(resp)
	}
}

// SignIn exchanges credentials for a session token and notifies listeners.
func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) error {
	resp, err := p.post(ctx, "/api/auth/login", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return common.ErrInvalidCredentials
	default:
		return unexpectedStatus(resp)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	account := &Account{Email: email}
	p.mu.Lock()
	p.account = account
	p.token = out.AccessToken
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(account)
	}
	return nil
}

// SignOut drops the session and notifies listeners.
func (p *HTTPProvider) SignOut() {
	p.mu.Lock()
	p.account = nil
	p.token = ""
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
}

func (p *HTTPProvider) CurrentAccount(context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return Account{}, common.ErrUnauthenticated
	}
	return *p.account, nil
}

func (p *HTTPProvider) AccessToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return "", common.ErrUnauthenticated
	}
	return p.token, nil
}

func (p *HTTPProvider) OnAccountChanged(fn func(*Account)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *HTTPProvider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func unexpectedStatus(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %s: %s", resp.Status, string(b))
}
