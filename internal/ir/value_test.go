package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check that every variant implements Value
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestObjectSortedKeysASCIICase(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestObjectSortedKeysUsesNFC(t *testing.T) {
	obj := Object{"e\u0301": Int(1), "f": Int(2)}
	assert.Equal(t, []string{"f", "e\u0301"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"a", "ab", -1},
		{"", "a", -1},
		// surrogate pair 0xD800 sorts before 0xE000
		{"\U00010000", "", -1},
		{"", "\U00010000", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, compareKeysRFC8785(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestParseObjectNumbers(t *testing.T) {
	obj, err := ParseObject([]byte(`{"i": 300, "f": 148.5, "e": 1e3, "neg": -7, "big": 18446744073709551616}`))
	require.NoError(t, err)

	assert.Equal(t, Int(300), obj["i"])
	assert.Equal(t, Float(148.5), obj["f"])
	assert.Equal(t, Float(1000), obj["e"])
	assert.Equal(t, Int(-7), obj["neg"])
	// Beyond int64: falls back to float
	assert.Equal(t, Float(18446744073709551616), obj["big"])
}

func TestParseObjectNestedAndNull(t *testing.T) {
	obj, err := ParseObject([]byte(`{"atoms":[{"el":"Si"}],"notes":null,"pbc":[true,false]}`))
	require.NoError(t, err)

	assert.Equal(t, Array{Object{"el": String("Si")}}, obj["atoms"])
	assert.Equal(t, Null{}, obj["notes"])
	assert.Equal(t, Array{Bool(true), Bool(false)}, obj["pbc"])
}

func TestParseObjectRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an object", `[1,2,3]`},
		{"scalar", `"hello"`},
		{"invalid json", `{"a":`},
		{"trailing data", `{"a":1} {"b":2}`},
		{"overflow", `{"a": 1e999}`},
		{"keys equal after NFC", "{\"caf\u00e9\": 1, \"cafe\u0301\": 2}"},
		{"nested keys equal after NFC", "{\"m\": {\"\u00e9\": 1, \"e\u0301\": 2}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObject([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEncoding)
		})
	}
}

func TestObjectUnmarshalJSON(t *testing.T) {
	var wrapper struct {
		Payload Object `json:"payload"`
	}
	err := json.Unmarshal([]byte(`{"payload":{"b":2,"a":1.25}}`), &wrapper)
	require.NoError(t, err)

	assert.Equal(t, Object{"a": Float(1.25), "b": Int(2)}, wrapper.Payload)
}

func TestObjectMarshalJSONIsCanonical(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"payload": Object{"z": Int(1), "a": Float(300)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":{"a":300,"z":1}}`, string(data))
	assert.Contains(t, string(data), `{"a":300,"z":1}`)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s":   "x",
		"b":   true,
		"i":   3,
		"i64": int64(4),
		"f":   2.5,
		"n":   nil,
		"arr": []any{1, "two"},
		"num": json.Number("7"),
	})
	require.NoError(t, err)

	assert.Equal(t, Object{
		"s":   String("x"),
		"b":   Bool(true),
		"i":   Int(3),
		"i64": Int(4),
		"f":   Float(2.5),
		"n":   Null{},
		"arr": Array{Int(1), String("two")},
		"num": Int(7),
	}, v)
}

func TestFromGoRejects(t *testing.T) {
	_, err := FromGo(map[string]any{"kappa": []any{1.0, math.NaN()}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), `["kappa"][1]`)

	_, err = FromGo(struct{}{})
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = FromGo(math.Inf(1))
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = FromGo(map[string]any{"\u00e9": 1, "e\u0301": 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "NFC")
}

func TestToGoRoundTrip(t *testing.T) {
	obj := Object{
		"s":   String("x"),
		"i":   Int(3),
		"f":   Float(2.5),
		"n":   Null{},
		"arr": Array{Bool(true)},
		"obj": Object{"k": String("v")},
	}

	plain := ToGo(obj)
	assert.Equal(t, map[string]any{
		"s":   "x",
		"i":   int64(3),
		"f":   2.5,
		"n":   nil,
		"arr": []any{true},
		"obj": map[string]any{"k": "v"},
	}, plain)

	back, err := FromGo(plain)
	require.NoError(t, err)
	assert.Equal(t, obj, back)
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{
		"arr": Array{Int(1), Object{"k": String("v")}},
		"obj": Object{"k": Int(2)},
	}
	clone := orig.Clone()

	clone["arr"].(Array)[0] = Int(99)
	clone["arr"].(Array)[1].(Object)["k"] = String("changed")
	clone["obj"].(Object)["k"] = Int(100)
	clone["new"] = Bool(true)

	assert.Equal(t, Int(1), orig["arr"].(Array)[0])
	assert.Equal(t, String("v"), orig["arr"].(Array)[1].(Object)["k"])
	assert.Equal(t, Int(2), orig["obj"].(Object)["k"])
	assert.NotContains(t, orig, "new")

	assert.Nil(t, Object(nil).Clone())
}

func TestFloatMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Float(1e21))
	require.NoError(t, err)
	assert.Equal(t, "1e+21", string(data))

	_, err = json.Marshal(Float(math.NaN()))
	assert.Error(t, err)
}

func TestParseAssetTypeAndRelation(t *testing.T) {
	typ, err := ParseAssetType("results")
	require.NoError(t, err)
	assert.Equal(t, AssetResults, typ)

	_, err = ParseAssetType("Spreadsheet")
	assert.ErrorIs(t, err, ErrEncoding)

	rel, err := ParseRelation("produces")
	require.NoError(t, err)
	assert.Equal(t, RelProduces, rel)
	assert.True(t, rel.IsOutput())
	assert.False(t, rel.IsInput())

	_, err = ParseRelation("CAUSES")
	assert.ErrorIs(t, err, ErrUnknownRelation)
	assert.False(t, Relation("CAUSES").Valid())
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunQueued.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.True(t, RunDone.Terminal())
	assert.True(t, RunError.Terminal())

	st, err := ParseRunStatus("DONE")
	require.NoError(t, err)
	assert.Equal(t, RunDone, st)
}

func TestErrorMatching(t *testing.T) {
	err := NewNotFound("rs_abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrIntegrityConflict)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "id=rs_abc")

	wrapped := NewAppendTimeout(0)
	assert.True(t, Retryable(wrapped))
	assert.False(t, Retryable(NewDanglingReference("src_id", "x")))
	assert.Equal(t, ErrCodeDanglingReference, CodeOf(NewDanglingReference("src_id", "x")))
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}
