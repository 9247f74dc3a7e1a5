package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

const testProjectID = "test-project"

func setupFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	return client
}

func TestNew(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestStorage_GetSetRemove(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()

	ctx := context.Background()
	s, err := New(client, Config{
		Collection: fmt.Sprintf("test_sessions_%d", time.Now().UnixNano()),
		Namespace:  "device-1",
	})
	require.NoError(t, err)
	defer func() { _, _ = s.doc().Delete(ctx) }()

	_, err = s.Get(ctx, atscheck.KeyCredential)
	assert.ErrorIs(t, err, atscheck.ErrKeyNotFound)

	// Removing from a missing document is fine
	require.NoError(t, s.Remove(ctx, atscheck.KeyCredential))

	require.NoError(t, s.Set(ctx, atscheck.KeyCredential, "tok"))
	require.NoError(t, s.Set(ctx, atscheck.KeyUsername, "ana"))

	v, err := s.Get(ctx, atscheck.KeyUsername)
	require.NoError(t, err)
	assert.Equal(t, "ana", v)

	require.NoError(t, s.Remove(ctx, atscheck.KeyCredential))
	_, err = s.Get(ctx, atscheck.KeyCredential)
	assert.ErrorIs(t, err, atscheck.ErrKeyNotFound)

	v, err = s.Get(ctx, atscheck.KeyUsername)
	require.NoError(t, err)
	assert.Equal(t, "ana", v)
}
