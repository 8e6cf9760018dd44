package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints. The version suffix
// allows the encoding to change without colliding with old digests.
const (
	DomainIR     = "gqlc/ir/v1"
	DomainResult = "gqlc/result/v1"
	DomainSchema = "gqlc/schema/v1"
	DomainCache  = "gqlc/cache/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator removes domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes an arbitrary canonical-JSON-compatible value under
// domain.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// BlocksFingerprint identifies a block list. Two compilations producing the
// same plan have the same fingerprint regardless of query formatting.
func BlocksFingerprint(blocks []Block) (string, error) {
	return Fingerprint(DomainIR, Encode(blocks))
}

// MustBlocksFingerprint is like BlocksFingerprint but panics on error.
// Use only in tests.
func MustBlocksFingerprint(blocks []Block) string {
	fp, err := BlocksFingerprint(blocks)
	if err != nil {
		panic(err)
	}
	return fp
}
