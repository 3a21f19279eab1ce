package queueing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBodyDecodesJSON(t *testing.T) {
	got := ParseBody("application/json", []byte(`{"source":"int main(){}","options":["-O2"]}`))
	assert.Equal(t, "int main(){}", got["source"])
	assert.Equal(t, []interface{}{"-O2"}, got["options"])
}

func TestParseBodyDecodesJSONWithCharset(t *testing.T) {
	got := ParseBody("application/json; charset=utf-8", []byte(`{"source":"x"}`))
	assert.Equal(t, "x", got["source"])
}

func TestParseBodyWrapsInvalidJSONAsSource(t *testing.T) {
	got := ParseBody("application/json", []byte("not json"))
	assert.Equal(t, "not json", got["source"])
}

func TestParseBodyWrapsNonJSONContentType(t *testing.T) {
	got := ParseBody("text/plain", []byte("int main(){}"))
	assert.Equal(t, "int main(){}", got["source"])
}

func TestParseBodyEmptyBodyYieldsEmptyMapping(t *testing.T) {
	got := ParseBody("application/json", nil)
	assert.Empty(t, got)
}
