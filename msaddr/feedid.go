// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package msaddr

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// feedIDPrefix is the sigil that starts every canonical feed identity.
	feedIDPrefix = "@"

	// feedIDSuffix is the algorithm tag that ends every canonical feed
	// identity.
	feedIDSuffix = ".ed25519"
)

// FeedID is the long-lived ed25519 public key that identifies a peer in the
// overlay.  Its canonical rendering is "@<base64>.ed25519".
type FeedID [ed25519.PublicKeySize]byte

// zeroFeedID is used to detect identities that have not been set.
var zeroFeedID FeedID

// NewFeedIDFromBytes returns the feed identity for the provided raw public key
// bytes.
func NewFeedIDFromBytes(pub []byte) (FeedID, error) {
	var id FeedID
	if len(pub) != ed25519.PublicKeySize {
		str := fmt.Sprintf("invalid public key length %d", len(pub))
		return id, makeError(ErrMissingKey, str)
	}
	copy(id[:], pub)
	return id, nil
}

// NewFeedIDFromString parses a canonical "@<base64>.ed25519" feed identity.
func NewFeedIDFromString(s string) (FeedID, error) {
	var id FeedID
	if !strings.HasPrefix(s, feedIDPrefix) || !strings.HasSuffix(s, feedIDSuffix) {
		str := fmt.Sprintf("feed identity %q lacks the @...ed25519 form", s)
		return id, makeError(ErrMissingKey, str)
	}
	b64 := strings.TrimSuffix(strings.TrimPrefix(s, feedIDPrefix), feedIDSuffix)
	return parseBase64Key(b64)
}

// parseBase64Key decodes a standard base64 ed25519 public key.
func parseBase64Key(b64 string) (FeedID, error) {
	var id FeedID
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		str := fmt.Sprintf("malformed base64 public key %q: %v", b64, err)
		return id, makeError(ErrMissingKey, str)
	}
	return NewFeedIDFromBytes(raw)
}

// IsZero returns whether the feed identity is unset.
func (id FeedID) IsZero() bool {
	return id == zeroFeedID
}

// Base64 returns the standard base64 encoding of the raw public key without
// the sigil or algorithm tag.
func (id FeedID) Base64() string {
	return base64.StdEncoding.EncodeToString(id[:])
}

// String returns the canonical "@<base64>.ed25519" rendering of the identity.
func (id FeedID) String() string {
	return feedIDPrefix + id.Base64() + feedIDSuffix
}

// Equal returns whether two feed identities are the same key.
func (id FeedID) Equal(other FeedID) bool {
	return bytes.Equal(id[:], other[:])
}

// MarshalJSON implements the json.Marshaler interface using the canonical
// string rendering.
func (id FeedID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.  An empty string
// decodes to the zero identity.
func (id *FeedID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*id = FeedID{}
		return nil
	}
	parsed, err := NewFeedIDFromString(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
