package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainObject   = "dbgen/object/v1"
	DomainTemplate = "dbgen/template/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ObjectETag computes a stable entity tag for a virtual object from the
// descriptor it is generated from.
//
// Because regeneration is deterministic, the descriptor identifies the
// content; HEAD requests can report an ETag without materializing bytes.
func ObjectETag(descriptor map[string]any) (string, error) {
	canonical, err := MarshalCanonical(descriptor)
	if err != nil {
		return "", fmt.Errorf("ObjectETag: failed to marshal: %w", err)
	}
	// S3 ETags are 32 hex characters
	return hashWithDomain(DomainObject, canonical)[:32], nil
}

// TemplateDigest fingerprints template source text.
func TemplateDigest(source []byte) string {
	return hashWithDomain(DomainTemplate, source)
}
