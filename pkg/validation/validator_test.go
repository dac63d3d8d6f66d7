package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"required ok", v.ValidateRequired("Smith Plumbing", "business_name"), false},
		{"required blank", v.ValidateRequired("   ", "business_name"), true},
		{"email ok", v.ValidateEmail("owner@smith.co.uk", "email"), false},
		{"email with display name", v.ValidateEmail("Owner <owner@smith.co.uk>", "email"), true},
		{"email garbage", v.ValidateEmail("not-an-email", "email"), true},
		{"email empty", v.ValidateEmail("", "email"), true},
		{"enum ok", v.ValidateEnum("plumber", []string{"plumber", "builder"}, "trade_type"), false},
		{"enum bad", v.ValidateEnum("chef", []string{"plumber", "builder"}, "trade_type"), true},
		{"length ok", v.ValidateStringLength("Café Ltd", "name", 1, 8), false},
		{"length long", v.ValidateStringLength("abcdefghi", "name", 1, 8), true},
		{"uuid ok", v.ValidateUUID("6f1c2c6e-2f7a-4d0c-9d0a-3f7c1d2e4b5a", "id"), false},
		{"uuid bad", v.ValidateUUID("6f1c2c6e", "id"), true},
		{"postcode ok", v.ValidateUKPostcode("SW1A 1AA", "postcode"), false},
		{"postcode lower no space", v.ValidateUKPostcode("m11ae", "postcode"), false},
		{"postcode empty", v.ValidateUKPostcode("", "postcode"), false},
		{"postcode bad", v.ValidateUKPostcode("12345", "postcode"), true},
		{"phone ok", v.ValidateUKPhone("07700 900123", "phone"), false},
		{"phone intl", v.ValidateUKPhone("+447700900123", "phone"), false},
		{"phone bad", v.ValidateUKPhone("555-1234", "phone"), true},
		{"color ok", v.ValidateHexColor("#1A2b3C", "primary_color"), false},
		{"color bad", v.ValidateHexColor("blue", "primary_color"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, tt.err)
			} else {
				assert.NoError(t, tt.err)
			}
		})
	}
}

func TestFirst(t *testing.T) {
	a := errors.New("a")
	assert.Equal(t, a, First(nil, a, errors.New("b")))
	assert.NoError(t, First(nil, nil))
}
