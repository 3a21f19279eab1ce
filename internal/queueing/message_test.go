package queueing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFillsDefaultsWhenBodyOmitsThem(t *testing.T) {
	msg := Build("guid-1", "gcc-trunk", false, map[string]string{"X-Custom": "1"}, map[string]string{"q": "1"}, nil)

	assert.Equal(t, "guid-1", msg.GUID())
	assert.Equal(t, "gcc-trunk", msg.CompilerID())

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, "", out["source"])
	assert.Equal(t, []interface{}{}, out["options"])
	assert.Equal(t, map[string]interface{}{}, out["filters"])
	assert.Equal(t, false, out["isCMake"])
	assert.Equal(t, map[string]interface{}{"X-Custom": "1"}, out["headers"])
	assert.Equal(t, map[string]interface{}{"q": "1"}, out["queryStringParameters"])
}

func TestBuildBodyOverridesDefaults(t *testing.T) {
	body := map[string]interface{}{
		"source":  "int main(){}",
		"options": []interface{}{"-O2"},
	}
	msg := Build("guid-2", "clang-trunk", true, nil, nil, body)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, "int main(){}", out["source"])
	assert.Equal(t, []interface{}{"-O2"}, out["options"])
	assert.Equal(t, true, out["isCMake"])
	assert.Equal(t, map[string]interface{}{}, out["headers"])
	assert.Equal(t, map[string]interface{}{}, out["queryStringParameters"])
	// defaults still fill fields the body didn't supply
	assert.Equal(t, map[string]interface{}{}, out["filters"])
}

func TestBuildBodyOverlayWinsOnKeyCollision(t *testing.T) {
	// Per the documented merge order, a parsed body key collides with and
	// overwrites the base identity fields rather than being dropped.
	body := map[string]interface{}{
		"guid": "body-supplied-guid",
	}
	msg := Build("guid-3", "gcc-trunk", false, nil, nil, body)

	assert.Equal(t, "body-supplied-guid", msg.GUID())
	assert.Equal(t, "gcc-trunk", msg.CompilerID())
}
