// Package auth gives the sync core its notion of "who is signed in".
// Sync exists only while an account is present; callers read the account
// fresh at the start of every operation instead of caching it.
package auth

import "context"

// Account identifies the signed-in user. The email doubles as the owner
// key for records and sync metadata.
type Account struct {
	Email string
}

// Provider yields the current account and the API credentials attached to
// it. CurrentAccount and AccessToken fail with common.ErrUnauthenticated
// while signed out.
type Provider interface {
	CurrentAccount(ctx context.Context) (Account, error)

	// AccessToken returns the bearer token for API calls; satisfies
	// remote.TokenSource.
	AccessToken(ctx context.Context) (string, error)

	// OnAccountChanged registers a callback invoked after every sign-in
	// (with the new account) and sign-out (with nil).
	OnAccountChanged(fn func(account *Account))
}
