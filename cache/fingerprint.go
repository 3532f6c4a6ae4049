package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Descriptor collects the semantically significant fields of a request and
// canonicalizes them into a fingerprint. Two rules maximize hit rate and
// correctness:
//
//   - fields equal to their documented default are omitted, so calls that
//     differ only in unset optional parameters share a fingerprint
//   - list-valued context is summarized by an order-sensitive cryptographic
//     digest of a length-prefixed serialization, so reorderings and
//     anagram-style collisions produce different fingerprints
type Descriptor struct {
	operation string
	fields    map[string]string
}

// NewDescriptor starts a descriptor for the named operation.
func NewDescriptor(operation string) *Descriptor {
	return &Descriptor{operation: operation, fields: map[string]string{}}
}

// Field records a string field, omitted when equal to its documented default.
func (d *Descriptor) Field(name, value, defaultValue string) *Descriptor {
	if value != defaultValue {
		d.fields[name] = value
	}
	return d
}

// IntField records an integer field, omitted when equal to its documented default.
func (d *Descriptor) IntField(name string, value, defaultValue int) *Descriptor {
	if value != defaultValue {
		d.fields[name] = strconv.Itoa(value)
	}
	return d
}

// List records list-valued context (e.g. accumulated learnings) as an
// order-sensitive digest. Empty lists are omitted.
func (d *Descriptor) List(name string, values []string) *Descriptor {
	if len(values) == 0 {
		return d
	}

	h := sha256.New()
	for _, v := range values {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(v)))
		h.Write(lenBuf[:])
		h.Write([]byte(v))
	}
	d.fields[name] = hex.EncodeToString(h.Sum(nil))
	return d
}

// Fingerprint returns the canonical fingerprint: a sha256 digest over the
// operation name and the retained fields in sorted order.
func (d *Descriptor) Fingerprint() string {
	names := make([]string, 0, len(d.fields))
	for name := range d.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\x1f", d.operation)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s=%s\x1e", name, d.fields[name])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
