package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DomainAsset is the domain prefix for asset identity. The canonicalization
// version is embedded so a rule change can never collide with old ids.
const DomainAsset = "mcg/asset/" + CanonicalVersion

// IDHexLen is the length of the hex digest part of an asset id.
const IDHexLen = sha256.Size * 2

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + tag + 0x00 + data)
// The null separators prevent boundary ambiguity between the parts.
func hashWithDomain(domain, tag string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(tag))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Identify computes the content-addressed id of an asset.
// Pure: the same (type, payload) always yields the same id regardless of map
// iteration order or numeric spelling. Returns an EncodingError if the type
// is unknown or the payload cannot be canonicalized.
func Identify(t AssetType, payload Object) (string, error) {
	prefix, ok := idPrefixes[t]
	if !ok {
		return "", NewEncodingError(fmt.Sprintf("unknown asset type %q", string(t)), nil)
	}

	canonical, err := CanonicalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("identify %s: %w", t, err)
	}

	return prefix + "_" + hashWithDomain(DomainAsset, string(t), canonical), nil
}

// IdentifyCanonical is Identify for callers that already hold the canonical
// bytes (snapshot verification, store reload).
func IdentifyCanonical(t AssetType, canonical []byte) (string, error) {
	prefix, ok := idPrefixes[t]
	if !ok {
		return "", NewEncodingError(fmt.Sprintf("unknown asset type %q", string(t)), nil)
	}
	return prefix + "_" + hashWithDomain(DomainAsset, string(t), canonical), nil
}

// MustIdentify is like Identify but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustIdentify(t AssetType, payload Object) string {
	id, err := Identify(t, payload)
	if err != nil {
		panic(err)
	}
	return id
}

// TypeOfID returns the asset type encoded in an id's prefix.
// Returns false for run ids and anything else that is not an asset id.
func TypeOfID(id string) (AssetType, bool) {
	prefix, digest, ok := strings.Cut(id, "_")
	if !ok || len(digest) != IDHexLen {
		return "", false
	}
	t, ok := prefixTypes[prefix]
	return t, ok
}
