// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "fmt"

// Role is the domain role carried by an account and its tokens.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleCourier  Role = "COURIER"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleCustomer, RoleCourier}
}

// ParseRole converts s into a known Role. Matching is exact.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string {
	return string(r)
}
