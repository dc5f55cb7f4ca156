// Package auth is the password gate in front of presence writes: one shared password
// per region group, plus an admin password for manual reset checks.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrWrongPassword = errors.New("wrong password")
	ErrNotConfigured = errors.New("no password configured")
)

type Gate struct {
	regions map[string]string
	admin   string
}

// NewGate takes Argon2id hashes keyed by region id
func NewGate(regionHashes map[string]string, adminHash string) *Gate {
	regions := make(map[string]string, len(regionHashes))
	for id, h := range regionHashes {
		regions[strings.ToUpper(id)] = h
	}
	return &Gate{regions: regions, admin: adminHash}
}

func (g *Gate) VerifyRegion(region, password string) error {
	h, ok := g.regions[strings.ToUpper(region)]
	if !ok {
		return fmt.Errorf("region %s: %w", region, ErrNotConfigured)
	}
	return verify(h, password)
}

func (g *Gate) VerifyAdmin(password string) error {
	if g.admin == "" {
		return fmt.Errorf("admin: %w", ErrNotConfigured)
	}
	return verify(g.admin, password)
}

// HasRegion reports whether region has a password configured
func (g *Gate) HasRegion(region string) bool {
	_, ok := g.regions[strings.ToUpper(region)]
	return ok
}

func verify(hash, password string) error {
	ok, err := VerifyPassword(hash, password)
	if err != nil {
		return fmt.Errorf("unusable password hash: %w", err)
	}
	if !ok {
		return ErrWrongPassword
	}
	return nil
}
