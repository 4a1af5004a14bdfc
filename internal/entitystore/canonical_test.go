package entitystore

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysAndSkipsHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"b": "<tag>&",
		"a": []any{int64(1), true, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,true,null],"b":"<tag>&"}`, string(data))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16 code units (the emoji is a surrogate pair starting 0xD83D).
	data, err := MarshalCanonical(map[string]any{
		"\U0001F600": int64(1),
		"\uff61":     int64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uff61\":2}", string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	data, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(data))
}

func TestMarshalCanonical_Floats(t *testing.T) {
	data, err := MarshalCanonical([]any{2.0, 0.25, 1e21})
	require.NoError(t, err)
	assert.Equal(t, `[2.0,0.25,1e+21]`, string(data))

	_, err = MarshalCanonical(math.NaN())
	assert.Error(t, err)
}

func TestMarshalCanonical_RejectsUnknownTypes(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestNormalizeJSONNumbers(t *testing.T) {
	v, err := normalizeJSONNumbers(map[string]any{
		"i": json.Number("7"),
		"f": json.Number("2.0"),
		"l": []any{json.Number("1e3")},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"i": int64(7), "f": 2.0, "l": []any{1000.0}}, v)
}
