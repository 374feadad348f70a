package service

import (
	"context"
	"testing"

	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveTrimsAndStores(t *testing.T) {
	kv := store.NewMemoryStore()
	svc := NewCredentialsService(kv)
	ctx := context.Background()

	saved, err := svc.Save(ctx, models.Credentials{CardNumber: " 1234 ", DeviceId: "dev1\n", Constant: "\tABCD"})
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{CardNumber: "1234", DeviceId: "dev1", Constant: "ABCD"}, saved)

	v, ok, _ := kv.Get(ctx, store.KeyCardNumber)
	assert.True(t, ok)
	assert.Equal(t, "1234", v)
	v, _, _ = kv.Get(ctx, store.KeyDeviceId)
	assert.Equal(t, "dev1", v)
	v, _, _ = kv.Get(ctx, store.KeyConstant)
	assert.Equal(t, "ABCD", v)
}

func TestSaveRejectsBlankFields(t *testing.T) {
	kv := store.NewMemoryStore()
	svc := NewCredentialsService(kv)
	ctx := context.Background()

	blanks := []models.Credentials{
		{CardNumber: "", DeviceId: "dev1", Constant: "ABCD"},
		{CardNumber: "1234", DeviceId: "   ", Constant: "ABCD"},
		{CardNumber: "1234", DeviceId: "dev1", Constant: ""},
		{},
	}
	for _, c := range blanks {
		_, err := svc.Save(ctx, c)
		assert.ErrorIs(t, err, models.ErrMissingFields)
	}

	_, ok, _ := kv.Get(ctx, store.KeyCardNumber)
	assert.False(t, ok, "nothing is written when validation fails")
}

func TestLoadPrefersOverride(t *testing.T) {
	kv := store.NewMemoryStore()
	svc := NewCredentialsService(kv)
	ctx := context.Background()

	_, err := svc.Save(ctx, models.Credentials{CardNumber: "1234", DeviceId: "dev1", Constant: "ABCD"})
	require.NoError(t, err)

	got, err := svc.Load(ctx, models.Credentials{DeviceId: "phone"})
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{CardNumber: "1234", DeviceId: "phone", Constant: "ABCD"}, got)
}

func TestLoadEmptyStore(t *testing.T) {
	svc := NewCredentialsService(store.NewMemoryStore())

	got, err := svc.Load(context.Background(), models.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{}, got)
}
