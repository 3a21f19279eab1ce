// Package queueing builds and submits compile/cmake queue messages,
// overflowing oversized payloads to object storage.
package queueing

import "encoding/json"

// defaultFields are zero-valued when neither the request body nor the
// caller supplied them, per the wire format in the specification.
func defaultFields() map[string]interface{} {
	return map[string]interface{}{
		"source":            "",
		"options":           []interface{}{},
		"filters":           map[string]interface{}{},
		"backendOptions":    map[string]interface{}{},
		"tools":             []interface{}{},
		"libraries":         []interface{}{},
		"files":             []interface{}{},
		"executeParameters": map[string]interface{}{},
	}
}

// Message is the queue payload: guid, compilerId, isCMake, headers and
// queryStringParameters plus whatever the parsed request body contributed,
// with the required domain fields default-filled when absent.
type Message struct {
	raw map[string]interface{}
}

// Build assembles a Message per the merge order in the specification:
// base identity fields first, then the parsed body overlaid on top
// (body wins on key collision), then defaults fill in anything still
// missing — defaults never overwrite a value the body or base already
// supplied.
func Build(guid, compilerID string, isCMake bool, headers, query map[string]string, parsedBody map[string]interface{}) *Message {
	merged := map[string]interface{}{
		"guid":                  guid,
		"compilerId":            compilerID,
		"isCMake":               isCMake,
		"headers":               headersOrEmpty(headers),
		"queryStringParameters": queryOrEmpty(query),
	}
	for k, v := range parsedBody {
		merged[k] = v
	}
	for k, v := range defaultFields() {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return &Message{raw: merged}
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func queryOrEmpty(q map[string]string) map[string]string {
	if q == nil {
		return map[string]string{}
	}
	return q
}

// GUID returns the message's correlation id.
func (m *Message) GUID() string {
	s, _ := m.raw["guid"].(string)
	return s
}

// CompilerID returns the message's compiler id.
func (m *Message) CompilerID() string {
	s, _ := m.raw["compilerId"].(string)
	return s
}

// MarshalJSON serialises the full flattened message.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}
