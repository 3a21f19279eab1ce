package shaping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectJSONStripsGUIDAndS3Key(t *testing.T) {
	result := map[string]interface{}{
		"guid":  "abc",
		"s3Key": "key.json",
		"code":  float64(0),
		"asm":   []interface{}{map[string]interface{}{"text": "ret"}},
	}
	body, contentType, err := Project(result, Options{})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	_, hasGUID := decoded["guid"]
	_, hasKey := decoded["s3Key"]
	assert.False(t, hasGUID)
	assert.False(t, hasKey)
}

func TestProjectPlainTextHappyPath(t *testing.T) {
	result := map[string]interface{}{
		"guid": "abc",
		"code": float64(0),
		"asm":  []interface{}{map[string]interface{}{"text": "mov eax, 0"}, map[string]interface{}{"text": "ret"}},
	}
	body, contentType, err := Project(result, Options{PlainText: true})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)
	text := string(body)
	assert.Contains(t, text, banner)
	assert.Contains(t, text, "mov eax, 0")
	assert.Contains(t, text, "ret")
	assert.NotContains(t, text, "exited with result code")
}

func TestProjectPlainTextIncludesExitCodeAndStreams(t *testing.T) {
	result := map[string]interface{}{
		"code":   float64(1),
		"asm":    []interface{}{},
		"stdout": []interface{}{map[string]interface{}{"text": "building"}},
		"stderr": []interface{}{map[string]interface{}{"text": "error: boom"}},
		"execResult": map[string]interface{}{
			"code":   float64(139),
			"stdout": []interface{}{map[string]interface{}{"text": "segfault"}},
		},
	}
	body, _, err := Project(result, Options{PlainText: true})
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "# Compiler exited with result code 1")
	assert.Contains(t, text, "# stdout")
	assert.Contains(t, text, "building")
	assert.Contains(t, text, "# stderr")
	assert.Contains(t, text, "error: boom")
	assert.Contains(t, text, "# Execution exited with result code 139")
	assert.Contains(t, text, "segfault")
}

func TestProjectPlainTextStripsAnsiWhenRequested(t *testing.T) {
	result := map[string]interface{}{
		"code": float64(0),
		"asm":  []interface{}{map[string]interface{}{"text": "\x1b[31mret\x1b[0m"}},
	}
	body, _, err := Project(result, Options{PlainText: true, FilterAnsi: true})
	require.NoError(t, err)
	assert.Equal(t, banner+"\nret\n", string(body))
}
