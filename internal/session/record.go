package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorruptRecord marks a stored session blob that failed to decode. It is
// an infrastructure-class failure: guards treat it as fail-open, admin scans
// treat the record as already expired.
var ErrCorruptRecord = errors.New("corrupt session record")

// digestTailLen is how many trailing credential characters feed the digest.
const digestTailLen = 16

// Record is the stored session state. Timestamps are millisecond epochs to
// match the wire format of the records already in production stores.
type Record struct {
	UserID       string `json:"userId"`
	LastActivity int64  `json:"lastActivity"`
	CreatedAt    int64  `json:"createdAt"`
	IPAddress    string `json:"ipAddress"`
	UserAgent    string `json:"userAgent"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (r Record) CreatedTime() time.Time {
	return time.UnixMilli(r.CreatedAt)
}

// LastActivityTime returns LastActivity as a time.Time.
func (r Record) LastActivityTime() time.Time {
	return time.UnixMilli(r.LastActivity)
}

// Encode serializes a record for storage.
func Encode(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return string(data), nil
}

// Decode parses a stored record. CreatedAt is immutable once set; a blob
// without it (or without a user) is corrupt.
func Decode(raw string) (Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if r.UserID == "" || r.CreatedAt == 0 {
		return Record{}, ErrCorruptRecord
	}
	return r, nil
}

// Key builds the storage key for a user and token digest.
func Key(userID, digest string) string {
	return "session:" + userID + ":" + digest
}

// TokenDigest derives the namespacing digest for a credential: the trailing
// characters base64-encoded with non-alphanumerics stripped. Short, derived,
// and non-secret on purpose.
func TokenDigest(token string) string {
	tail := token
	if len(tail) > digestTailLen {
		tail = tail[len(tail)-digestTailLen:]
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(tail))

	out := make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		}
	}
	return string(out)
}
