package queueing

import (
	"encoding/json"
	"fmt"
	"time"
)

// overflowTimestampLayout is the seconds part of the
// "yyyy-mm-ddTHH-MM-SS-SSSZ" key segment — colons are unsafe in S3 keys so
// they're replaced with dashes; OverflowKey appends "-SSSZ" (milliseconds,
// dash-separated) itself.
const overflowTimestampLayout = "2006-01-02T15-04-05"

// Envelope is what actually gets enqueued in place of an oversized
// message: a pointer to where the full message was archived.
type Envelope struct {
	Type          string `json:"type"`
	GUID          string `json:"guid"`
	CompilerID    string `json:"compilerId"`
	S3Bucket      string `json:"s3Bucket"`
	S3Key         string `json:"s3Key"`
	OriginalSize  int    `json:"originalSize"`
	Timestamp     string `json:"timestamp"`
}

// OverflowKey builds the object-store key a too-large queue message is
// archived under: "{prefix}{environment}/{iso-timestamp}/{guid}.json".
func OverflowKey(prefix, environment, guid string, now time.Time) string {
	t := now.UTC()
	stamp := fmt.Sprintf("%s-%03dZ", t.Format(overflowTimestampLayout), t.Nanosecond()/int(time.Millisecond))
	return fmt.Sprintf("%s%s/%s/%s.json", prefix, environment, stamp, guid)
}

// NewEnvelope builds the overflow envelope enqueued in place of the
// original oversized message.
func NewEnvelope(guid, compilerID, bucket, key string, originalSize int, now time.Time) *Envelope {
	return &Envelope{
		Type:         "s3-overflow",
		GUID:         guid,
		CompilerID:   compilerID,
		S3Bucket:     bucket,
		S3Key:        key,
		OriginalSize: originalSize,
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
	}
}

func (e *Envelope) MarshalBody() ([]byte, error) {
	return json.Marshal(e)
}
