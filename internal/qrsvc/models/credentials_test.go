package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Credentials{CardNumber: "1234", DeviceId: "dev1", Constant: "ABCD"}.Validate())

	assert.ErrorIs(t, Credentials{DeviceId: "dev1", Constant: "ABCD"}.Validate(), ErrMissingFields)
	assert.ErrorIs(t, Credentials{CardNumber: "1234", Constant: "ABCD"}.Validate(), ErrMissingFields)
	assert.ErrorIs(t, Credentials{CardNumber: "1234", DeviceId: "dev1", Constant: " \t"}.Validate(), ErrMissingFields)
}

func TestMerge(t *testing.T) {
	stored := Credentials{CardNumber: "1234", DeviceId: "dev1", Constant: "ABCD"}

	got := Credentials{CardNumber: "9999"}.Merge(stored)
	assert.Equal(t, Credentials{CardNumber: "9999", DeviceId: "dev1", Constant: "ABCD"}, got)

	assert.Equal(t, stored, Credentials{}.Merge(stored))
}
