package auth

import (
	"context"
	"slices"
	"sync"

	"github.com/okarpov/lingohist/internal/common"
)

// StaticProvider is a Provider with a fixed account, used in tests and
// offline tooling. SetAccount swaps the signed-in user at runtime.
type StaticProvider struct {
	mu        sync.Mutex
	account   *Account
	token     string
	listeners []func(*Account)
}

func NewStaticProvider(email, token string) *StaticProvider {
	p := &StaticProvider{}
	if email != "" {
		p.account = &Account{Email: email}
		p.token = token
	}
	return p
}

func (p *StaticProvider) CurrentAccount(context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return Account{}, common.ErrUnauthenticated
	}
	return *p.account, nil
}

func (p *StaticProvider) AccessToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return "", common.ErrUnauthenticated
	}
	return p.token, nil
}

func (p *StaticProvider) OnAccountChanged(fn func(*Account)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetAccount signs in (non-empty email) or out (empty email) and notifies
// listeners.
func (p *StaticProvider) SetAccount(email, token string) {
	p.mu.Lock()
	var account *Account
	if email != "" {
		account = &Account{Email: email}
	}
	p.account = account
	p.token = token
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(account)
	}
}
