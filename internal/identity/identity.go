// Package identity normalises the contact a user signs up with. An identity
// is either an e-mail address (lower-cased) or a phone number (E.164).
package identity

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/nyaruka/phonenumbers"
)

type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

// Identity is a normalised contact value, safe to use as a unique key.
type Identity struct {
	Value string
	Kind  Kind
}

func (i Identity) String() string { return i.Value }

// Normalize classifies raw and returns its canonical form. Phone numbers
// without a leading "+" are parsed in defaultRegion (ISO 3166 code, may be
// empty). Errors wrap common.ErrInvalidIdentity.
func Normalize(raw, defaultRegion string) (Identity, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Identity{}, fmt.Errorf("%w: empty", common.ErrInvalidIdentity)
	}

	if strings.Contains(v, "@") {
		return normalizeEmail(v)
	}
	return normalizePhone(v, defaultRegion)
}

func normalizeEmail(v string) (Identity, error) {
	at := strings.LastIndex(v, "@")
	local, domain := v[:at], v[at+1:]
	if local == "" || domain == "" || strings.ContainsAny(v, " \t") || !strings.Contains(domain, ".") {
		return Identity{}, fmt.Errorf("%w: malformed email", common.ErrInvalidIdentity)
	}
	return Identity{Value: strings.ToLower(v), Kind: KindEmail}, nil
}

func normalizePhone(v, defaultRegion string) (Identity, error) {
	region := strings.ToUpper(defaultRegion)
	if region == "" {
		region = "ZZ"
	}
	num, err := phonenumbers.Parse(v, region)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", common.ErrInvalidIdentity, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return Identity{}, fmt.Errorf("%w: invalid phone number", common.ErrInvalidIdentity)
	}
	return Identity{Value: phonenumbers.Format(num, phonenumbers.E164), Kind: KindPhone}, nil
}
