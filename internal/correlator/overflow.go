package correlator

import "context"

// resultFetcher is the subset of objectstore.Store the correlator needs
// to resolve a lightweight (overflowed) result frame.
type resultFetcher interface {
	GetJSON(ctx context.Context, key string, out interface{}) error
}

var payloadFields = []string{"asm", "stdout", "stderr", "code", "output", "result"}

func isLightweight(frame map[string]interface{}) bool {
	if _, ok := frame["s3Key"]; !ok {
		return false
	}
	for _, field := range payloadFields {
		if _, ok := frame[field]; ok {
			return false
		}
	}
	return true
}

func syntheticErrorResult(guid string) map[string]interface{} {
	return map[string]interface{}{
		"code":      -1,
		"okToCache": false,
		"stdout":    []interface{}{},
		"stderr": []interface{}{
			map[string]interface{}{"text": "An internal error has occurred while retrieving the compilation result"},
		},
		"execTime":  0,
		"timedOut":  false,
		"guid":      guid,
	}
}

// resolve expands a lightweight overflow frame into the full result by
// fetching it from the object store, merging the fetched object first
// and the original frame's fields on top (so guid survives). Non-
// lightweight frames are returned unchanged.
func resolve(ctx context.Context, frame map[string]interface{}, objects resultFetcher, resultsPrefix string) map[string]interface{} {
	if !isLightweight(frame) {
		return frame
	}
	guid, _ := frame["guid"].(string)
	key, _ := frame["s3Key"].(string)

	var fetched map[string]interface{}
	if err := objects.GetJSON(ctx, resultsPrefix+key, &fetched); err != nil {
		return syntheticErrorResult(guid)
	}

	merged := map[string]interface{}{}
	for k, v := range fetched {
		merged[k] = v
	}
	for k, v := range frame {
		merged[k] = v
	}
	return merged
}
