package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hash domains. A handle and a plan hash over the same bytes never collide.
const (
	DomainLocalType = "nopia/localtype/v1"
	DomainPlan      = "nopia/plan/v1"
)

// digest returns hex(SHA-256(domain || 0x00 || data)).
func digest(domain string, data []byte) string {
	h := sha256.New()
	io.WriteString(h, domain)
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HandleOf computes the content-addressed handle for an identity key.
// Two independent runs over the same inputs produce the same handle.
func HandleOf(key IdentityKey) (LocalTypeHandle, error) {
	obj := Object{
		"scope": String(key.Scope.String()),
		"name":  String(key.Name),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("handle of %s: %w", key, err)
	}

	return LocalTypeHandle(digest(DomainLocalType, canonical)), nil
}

// MustHandleOf is like HandleOf but panics on error.
// Identity keys only carry strings, so marshaling cannot fail in practice.
func MustHandleOf(key IdentityKey) LocalTypeHandle {
	h, err := HandleOf(key)
	if err != nil {
		panic(err)
	}
	return h
}

// PlanHash computes the hash of an emitted module image.
// Returns error if the image cannot be canonically marshaled.
func PlanHash(img ModuleImage) (string, error) {
	canonical, err := MarshalCanonical(img.canonical())
	if err != nil {
		return "", fmt.Errorf("plan hash of %s: %w", img.Name, err)
	}
	return digest(DomainPlan, canonical), nil
}
