package backup

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/dupres/dupres/internal/errors"

	"github.com/minio/sha256-simd"
)

// Hash returns the ID for data.
func Hash(data []byte) ID {
	return sha256.Sum256(data)
}

// idSize contains the size of an ID, in bytes.
const idSize = sha256.Size

// ID is the SHA-256 digest identifying a block, a blocklist or a whole file.
type ID [idSize]byte

// ParseID converts a hex string to an ID.
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, errors.Wrap(err, "hex.DecodeString")
	}
	return IDFromBytes(b)
}

// ParseBase64 decodes an ID from standard or URL-safe base64, padded or not.
// The backup documents store hashes in standard base64 while volume entry
// names use the URL-safe alphabet.
func ParseBase64(s string) (ID, error) {
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = enc.WithPadding(base64.NoPadding)
	}

	b, err := enc.DecodeString(s)
	if err != nil {
		return ID{}, errors.Wrapf(err, "decode base64 hash %q", s)
	}
	return IDFromBytes(b)
}

// IDFromBytes copies a raw 32 byte digest into an ID.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != idSize {
		return ID{}, errors.Errorf("invalid length %d for hash", len(b))
	}

	var id ID
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Base64 returns the standard base64 encoding used inside documents.
func (id ID) Base64() string {
	return base64.StdEncoding.EncodeToString(id[:])
}

// Base64URL returns the URL-safe base64 encoding used for archive entry names.
func (id ID) Base64URL() string {
	return base64.URLEncoding.EncodeToString(id[:])
}

const shortStr = 4

// Str returns the shortened string version of id.
func (id *ID) Str() string {
	if id == nil {
		return "[nil]"
	}

	if id.IsNull() {
		return "[null]"
	}

	return hex.EncodeToString(id[:shortStr])
}

// IsNull returns true iff id only consists of null bytes.
func (id ID) IsNull() bool {
	var nullID ID

	return id == nullID
}

// Less compares an ID to another other.
func (id ID) Less(other ID) bool {
	for k, b := range id {
		if b != other[k] {
			return b < other[k]
		}
	}
	return false
}

// MarshalJSON encodes id as standard base64, the way backup documents do.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Base64())
}

// UnmarshalJSON parses a base64 encoded hash.
func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "invalid hash")
	}

	parsed, err := ParseBase64(s)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}

// IDs is an ordered list of IDs.
type IDs []ID

func (ids IDs) String() string {
	elements := make([]string, 0, len(ids))
	for _, id := range ids {
		elements = append(elements, id.Str())
	}
	return "[" + strings.Join(elements, " ") + "]"
}
