package models

import (
	"errors"
	"strings"
)

var ErrMissingFields = errors.New("please fill in all fields")

// Credentials are the three values a payload is built from.
type Credentials struct {
	CardNumber string `json:"card_number"`
	DeviceId   string `json:"device_id"`
	Constant   string `json:"constant"`
}

func (c Credentials) Trim() Credentials {
	return Credentials{
		CardNumber: strings.TrimSpace(c.CardNumber),
		DeviceId:   strings.TrimSpace(c.DeviceId),
		Constant:   strings.TrimSpace(c.Constant),
	}
}

// Validate rejects credentials with any blank field.
func (c Credentials) Validate() error {
	t := c.Trim()
	if t.CardNumber == "" || t.DeviceId == "" || t.Constant == "" {
		return ErrMissingFields
	}
	return nil
}

// Merge fills the empty fields of c from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	if c.CardNumber == "" {
		c.CardNumber = fallback.CardNumber
	}
	if c.DeviceId == "" {
		c.DeviceId = fallback.DeviceId
	}
	if c.Constant == "" {
		c.Constant = fallback.Constant
	}
	return c
}
