package transfer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/testutil"
)

func TestResolveRecipient(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	bob := testutil.SeedAccount(t, s, "Bob", 0)

	tests := []struct {
		name       string
		identifier string
		wantErr    error
	}{
		{"by id", bob.ID.String(), nil},
		{"by handle", "bob", nil},
		{"with at sign and case", "  @BOB ", nil},
		{"unknown handle", "carol", domain.ErrReceiverNotFound},
		{"unknown id", uuid.NewString(), domain.ErrReceiverNotFound},
		{"empty", "", domain.ErrReceiverNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := e.ResolveRecipient(context.Background(), tt.identifier)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, bob.ID, a.ID)
		})
	}
}

func TestResolveQRPayload(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	bob := testutil.SeedAccount(t, s, "bob", 0)

	payload := func(p domain.QRPayload) []byte {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		return b
	}

	a, err := e.ResolveQRPayload(context.Background(), payload(domain.QRPayload{
		Type: domain.QRPayloadTypeRecipient, AccountID: bob.ID, CreatedAt: time.Now(),
	}))
	require.NoError(t, err)
	assert.Equal(t, bob.ID, a.ID)

	a, err = e.ResolveQRPayload(context.Background(), payload(domain.QRPayload{
		Type: domain.QRPayloadTypeRecipient, Handle: "@bob",
	}))
	require.NoError(t, err)
	assert.Equal(t, bob.ID, a.ID)

	_, err = e.ResolveQRPayload(context.Background(), payload(domain.QRPayload{
		Type: "merchant", AccountID: bob.ID,
	}))
	assert.ErrorIs(t, err, domain.ErrInvalidQRPayload)

	_, err = e.ResolveQRPayload(context.Background(), payload(domain.QRPayload{
		Type: domain.QRPayloadTypeRecipient, AccountID: uuid.New(),
	}))
	assert.ErrorIs(t, err, domain.ErrReceiverNotFound)
}
