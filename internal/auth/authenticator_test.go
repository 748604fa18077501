package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/antigravity/summarizer-gateway/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockKeyStore is a mock implementation of KeyStore.
type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) FindByValue(ctx context.Context, value string) (*models.APIKey, error) {
	args := m.Called(value)
	key, _ := args.Get(0).(*models.APIKey)
	return key, args.Error(1)
}

func (m *MockKeyStore) IncrementUsage(ctx context.Context, id int64) (int64, time.Time, error) {
	args := m.Called(id)
	return args.Get(0).(int64), args.Get(1).(time.Time), args.Error(2)
}

const validKey = "sk_abcdefghijkl_S3cr3tValue"

func bearer(key string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return h
}

func TestExtract_Precedence(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer from-bearer")
	h.Set("apikey", "from-header")
	body := map[string]any{"apiKey": "from-body"}

	assert.Equal(t, "from-bearer", Extract(Credentials{Header: h, Body: body, AllowBody: true}))

	h.Del("Authorization")
	assert.Equal(t, "from-header", Extract(Credentials{Header: h, Body: body, AllowBody: true}))

	h.Del("apikey")
	assert.Equal(t, "from-body", Extract(Credentials{Header: h, Body: body, AllowBody: true}))
	assert.Equal(t, "", Extract(Credentials{Header: h, Body: body, AllowBody: false}))
}

func TestExtract_NonBearerAuthorizationFallsThrough(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	h.Set("apikey", "from-header")
	assert.Equal(t, "from-header", Extract(Credentials{Header: h}))

	h = http.Header{}
	h.Set("Authorization", "bearer   lower ")
	assert.Equal(t, "lower", Extract(Credentials{Header: h}))
}

func TestAuthenticate_Missing(t *testing.T) {
	store := new(MockKeyStore)
	a := NewAuthenticator(store, nil, zap.NewNop())

	_, err := a.Authenticate(context.Background(), Credentials{Header: http.Header{}})
	assert.True(t, apierr.IsKind(err, apierr.MissingCredential))
	store.AssertNotCalled(t, "FindByValue", mock.Anything)
}

func TestAuthenticate_Unknown(t *testing.T) {
	store := new(MockKeyStore)
	store.On("FindByValue", validKey).Return(nil, storage.ErrNotFound)
	a := NewAuthenticator(store, nil, zap.NewNop())

	_, err := a.Authenticate(context.Background(), Credentials{Header: bearer(validKey)})
	assert.True(t, apierr.IsKind(err, apierr.InvalidCredential))
	store.AssertNotCalled(t, "IncrementUsage", mock.Anything)
}

func TestAuthenticate_MalformedIsInvalid(t *testing.T) {
	store := new(MockKeyStore)
	a := NewAuthenticator(store, nil, zap.NewNop())

	_, err := a.Authenticate(context.Background(), Credentials{Header: bearer("not-a-key")})
	assert.True(t, apierr.IsKind(err, apierr.InvalidCredential))
	store.AssertNotCalled(t, "FindByValue", mock.Anything)
	store.AssertNotCalled(t, "IncrementUsage", mock.Anything)
}

func TestAuthenticate_Inactive(t *testing.T) {
	store := new(MockKeyStore)
	store.On("FindByValue", validKey).Return(&models.APIKey{ID: 7, Name: "old", Active: false, UsageCount: 40}, nil)
	a := NewAuthenticator(store, nil, zap.NewNop())

	_, err := a.Authenticate(context.Background(), Credentials{Header: bearer(validKey)})
	assert.True(t, apierr.IsKind(err, apierr.InactiveCredential))
	store.AssertNotCalled(t, "IncrementUsage", mock.Anything)
}

func TestAuthenticate_StoreDown(t *testing.T) {
	store := new(MockKeyStore)
	store.On("FindByValue", validKey).Return(nil, errors.New("connection refused"))
	a := NewAuthenticator(store, nil, zap.NewNop())

	_, err := a.Authenticate(context.Background(), Credentials{Header: bearer(validKey)})
	assert.True(t, apierr.IsKind(err, apierr.StoreUnavailable))
}

func TestAuthenticate_Success(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := new(MockKeyStore)
	store.On("FindByValue", validKey).Return(&models.APIKey{ID: 3, Key: validKey, Name: "ci", Active: true, UsageCount: 9}, nil)
	store.On("IncrementUsage", int64(3)).Return(int64(10), at, nil)
	a := NewAuthenticator(store, nil, zap.NewNop())

	key, err := a.Authenticate(context.Background(), Credentials{Header: bearer(validKey)})
	require.NoError(t, err)
	assert.Equal(t, int64(10), key.UsageCount)
	require.NotNil(t, key.LastUsed)
	assert.Equal(t, at, *key.LastUsed)
	assert.Empty(t, key.Key)
	assert.Equal(t, "key:3", key.Identity())
	store.AssertExpectations(t)
}

func TestAuthenticate_UsageFailureIsAbsorbed(t *testing.T) {
	store := new(MockKeyStore)
	store.On("FindByValue", validKey).Return(&models.APIKey{ID: 3, Name: "ci", Active: true, UsageCount: 9}, nil)
	store.On("IncrementUsage", int64(3)).Return(int64(0), time.Time{}, errors.New("disk full"))
	a := NewAuthenticator(store, nil, zap.NewNop())

	key, err := a.Authenticate(context.Background(), Credentials{Header: bearer(validKey)})
	require.NoError(t, err)
	assert.Equal(t, int64(9), key.UsageCount)
}

func TestAuthenticate_BodyCredential(t *testing.T) {
	store := new(MockKeyStore)
	store.On("FindByValue", validKey).Return(&models.APIKey{ID: 1, Active: true}, nil)
	store.On("IncrementUsage", int64(1)).Return(int64(1), time.Now(), nil)
	a := NewAuthenticator(store, nil, zap.NewNop())

	body := map[string]any{"apiKey": validKey}
	_, err := a.Authenticate(context.Background(), Credentials{Header: http.Header{}, Body: body})
	assert.True(t, apierr.IsKind(err, apierr.MissingCredential))

	_, err = a.Authenticate(context.Background(), Credentials{Header: http.Header{}, Body: body, AllowBody: true})
	assert.NoError(t, err)
}

func TestAuthenticate_DemoKey(t *testing.T) {
	store := new(MockKeyStore)
	a := NewAuthenticator(store, []string{" demo-public "}, zap.NewNop())

	key, err := a.Authenticate(context.Background(), Credentials{Header: bearer("demo-public")})
	require.NoError(t, err)
	assert.True(t, key.Demo)
	assert.Empty(t, key.Key)
	assert.Equal(t, "demo:"+storage.HashKey("demo-public")[:12], key.Identity())
	store.AssertNotCalled(t, "FindByValue", mock.Anything)
	store.AssertNotCalled(t, "IncrementUsage", mock.Anything)
}
