package dashboard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"dashsync/internal/source"
)

// IdentityKey identifies one dashboard document across passes. It is used
// verbatim as the Grafana dashboard uid.
type IdentityKey string

// identityKeyLength stays within Grafana's 40 character uid limit.
const identityKeyLength = 40

// IdentityKeyFor derives the identity key of the document stored under
// payloadKey in the source namespace/name.
func IdentityKeyFor(namespace, name, payloadKey string) IdentityKey {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(payloadKey))
	return IdentityKey(hex.EncodeToString(h.Sum(nil))[:identityKeyLength])
}

// Document is a dashboard extracted from a single payload entry.
type Document struct {
	Key        IdentityKey
	Source     source.SourceKey
	PayloadKey string
	Title      string

	// Content is the normalized dashboard model sent to the backend.
	Content map[string]interface{}

	// Checksum is the hex sha256 of the canonical JSON encoding of Content.
	Checksum string
}

// Ref returns a human readable reference to the document's origin.
func (d *Document) Ref() string {
	return d.Source.String() + "/" + d.PayloadKey
}

// ParseError reports a payload entry that could not be turned into a Document.
type ParseError struct {
	Source     source.SourceKey
	PayloadKey string
	Key        IdentityKey
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dashboard %s/%s: %v", e.Source, e.PayloadKey, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Checksum returns the hex sha256 of the canonical JSON encoding of content.
// encoding/json sorts map keys, so equal models hash equally.
func Checksum(content map[string]interface{}) (string, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
