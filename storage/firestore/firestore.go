// Package firestore provides a Firestore implementation of the atscheck.Store interface.
// Each namespace is one document whose fields are the stored keys.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Storage implements atscheck.Store using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
	namespace  string
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection is the Firestore collection holding session documents
	// Default: "client_sessions"
	Collection string

	// Namespace is the document id (default: "default")
	Namespace string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "client_sessions"
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}

	return &Storage{
		client:     client,
		collection: config.Collection,
		namespace:  config.Namespace,
	}, nil
}

// Get implements atscheck.Store
func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	snap, err := s.doc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", atscheck.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	if !snap.Exists() {
		return "", atscheck.ErrKeyNotFound
	}

	v, ok := snap.Data()[key].(string)
	if !ok {
		return "", atscheck.ErrKeyNotFound
	}
	return v, nil
}

// Set implements atscheck.Store
func (s *Storage) Set(ctx context.Context, key, value string) error {
	data := map[string]interface{}{
		key:         value,
		"updatedAt": time.Now().UTC(),
	}
	if _, err := s.doc().Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Remove implements atscheck.Store
func (s *Storage) Remove(ctx context.Context, key string) error {
	_, err := s.doc().Update(ctx, []firestore.Update{
		{Path: key, Value: firestore.Delete},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *Storage) doc() *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(s.namespace)
}
