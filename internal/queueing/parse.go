package queueing

import (
	"encoding/json"
	"mime"
	"strings"
)

// ParseBody decodes a raw request body according to its content type.
// JSON bodies are decoded into a mapping; anything else (or a JSON body
// that fails to parse) is wrapped as {"source": rawBody}. An empty body
// parses to an empty mapping.
func ParseBody(contentType string, raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	if isJSON(contentType) {
		var out map[string]interface{}
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return map[string]interface{}{"source": string(raw)}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.EqualFold(mediaType, "application/json")
}
