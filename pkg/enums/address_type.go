package enums

import (
	"fmt"
	"strings"
)

// AddressType distinguishes shipping from billing addresses.
type AddressType string

const (
	AddressTypeShipping AddressType = "SHIPPING"
	AddressTypeBilling  AddressType = "BILLING"
)

var validAddressTypes = []AddressType{
	AddressTypeShipping,
	AddressTypeBilling,
}

func (a AddressType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AddressType.
func (a AddressType) IsValid() bool {
	for _, candidate := range validAddressTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAddressType converts raw input into an AddressType. Empty input selects SHIPPING.
func ParseAddressType(value string) (AddressType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "" {
		return AddressTypeShipping, nil
	}
	for _, candidate := range validAddressTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid address type %q", value)
}
