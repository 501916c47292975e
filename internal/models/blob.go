package models

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Blob is the sink's single persisted document: the guild-name to topic-id
// map and the timestamp to sink-message-id map used for deduplication and
// troubleshooting.
type Blob struct {
	Topics      map[string]int64  `json:"topics"`
	Messages    map[string]int64  `json:"messages"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewBlob returns an empty, ready-to-use Blob.
func NewBlob() Blob {
	return Blob{
		Topics:      make(map[string]int64),
		Messages:    make(map[string]int64),
		LastUpdated: time.Time{},
	}
}

// Marshal serializes the blob with json-iterator, matching the library the
// admin status surface already uses for its responses.
func (b Blob) Marshal() ([]byte, error) {
	return jsonAPI.Marshal(b)
}

// UnmarshalBlob parses a previously persisted blob. An empty/missing file is
// not an error at the call site — callers should check for that before
// calling UnmarshalBlob.
func UnmarshalBlob(data []byte) (Blob, error) {
	var b Blob
	if err := jsonAPI.Unmarshal(data, &b); err != nil {
		return Blob{}, err
	}
	if b.Topics == nil {
		b.Topics = make(map[string]int64)
	}
	if b.Messages == nil {
		b.Messages = make(map[string]int64)
	}
	return b, nil
}
