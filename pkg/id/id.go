// Package id defines the typed identifiers every pouch keys its entities
// by: 32-bit instance ids, (name, version) app keys, string deployment ids,
// and a monotonic 64-bit quest id counter.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
)

// InstanceID is a 32-bit instance identifier, allocated at random and
// rendered as lowercase hex.
type InstanceID uint32

// String renders the instance id the way manifests and the HTTP API expect: 8 hex digits.
func (i InstanceID) String() string {
	return fmt.Sprintf("%08x", uint32(i))
}

// MarshalText renders the instance id as its hex string, so it serializes
// consistently whether it appears as a JSON value or a JSON object key.
func (i InstanceID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText parses the hex string form produced by MarshalText.
func (i *InstanceID) UnmarshalText(text []byte) error {
	v, err := ParseInstanceID(string(text))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// ParseInstanceID parses an 8-hex-digit instance id.
func ParseInstanceID(s string) (InstanceID, error) {
	var v uint32
	if _, err := fmt.Sscanf(s, "%08x", &v); err != nil {
		return 0, fmt.Errorf("parse instance id %q: %w", s, err)
	}
	return InstanceID(v), nil
}

// NewInstanceID returns a cryptographically random, non-zero instance id.
// Callers are responsible for rejecting collisions against the instance
// pouch (spec.md §4.5 Create).
func NewInstanceID() (InstanceID, error) {
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generate instance id: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v != 0 {
			return InstanceID(v), nil
		}
	}
}

var appNamePattern = regexp.MustCompile(`^[a-z0-9_.-]+$`)

// AppKey identifies an app by (name, version). Equality is by both
// components; ordering is undefined per spec.md §3.
type AppKey struct {
	Name    string
	Version string
}

// Validate checks the reverse-DNS-token constraint on Name.
func (k AppKey) Validate() error {
	if k.Name == "" || !appNamePattern.MatchString(k.Name) {
		return fmt.Errorf("invalid app name %q: must match [a-z0-9_.-]+", k.Name)
	}
	if k.Version == "" {
		return fmt.Errorf("invalid app version: must not be empty")
	}
	return nil
}

// String renders the key as "name#version", the form used for manifest filenames.
func (k AppKey) String() string {
	return fmt.Sprintf("%s#%s", k.Name, k.Version)
}

// DeploymentID is the stable string handle to a deployment.
type DeploymentID string

// QuestID is a monotonically increasing counter, 64-bit to never wrap in a
// process lifetime.
type QuestID uint64
