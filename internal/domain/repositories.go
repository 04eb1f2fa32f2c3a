package domain

//go:generate mockgen -source=repositories.go -destination=../mocks/mock_repositories.go -package=mocks

import (
	"context"
)

// BlobSource downloads raw media bytes
type BlobSource interface {
	// FetchBlob returns the body of a GET on url
	FetchBlob(ctx context.Context, url string) ([]byte, error)
}

// Backend is the remote signage service
type Backend interface {
	BlobSource

	// Authenticate exchanges a device password for the summary and content set.
	// Returns ErrAuthFailed for unknown passwords and ErrServerOffline for transport failures.
	Authenticate(ctx context.Context, password string) (*AuthResponse, error)
}

// Notifier is a long-lived push subscription keyed by device password
type Notifier interface {
	// Connect subscribes for password. Reconnecting with the same password is a no-op;
	// a different password tears down the previous subscription first.
	Connect(password string, handler EventHandler) error

	// Disconnect unsubscribes and closes the channel. Safe to call repeatedly.
	Disconnect()
}
