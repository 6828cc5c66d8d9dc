package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
	"pgregory.net/rapid"
)

func genScalar() *rapid.Generator[Value] {
	return rapid.OneOf(
		rapid.Just[Value](Null{}),
		rapid.Map(rapid.String(), func(s string) Value { return String(s) }),
		rapid.Map(rapid.Int64(), func(n int64) Value { return Int(n) }),
		rapid.Map(rapid.Float64Range(-1e12, 1e12), func(f float64) Value { return Float(f) }),
		rapid.Map(rapid.Bool(), func(b bool) Value { return Bool(b) }),
	)
}

// keyParts mixes ASCII with precomposed and decomposed accents and
// characters outside the BMP.
var keyParts = []string{
	"a", "e", "T_K", "_", "\u00e9", "e\u0301", "\u00c5", "A\u030a",
	"\u212b", "\uE000", "\U00010000", "\u0301",
}

func genKey() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(rapid.SampledFrom(keyParts), 1, 4).Draw(t, "parts")
		key := ""
		for _, p := range parts {
			key += p
		}
		return key
	})
}

func genPayload() *rapid.Generator[Object] {
	return rapid.Custom(func(t *rapid.T) Object {
		keys := rapid.SliceOfNDistinct(genKey(), 0, 6, norm.NFC.String).Draw(t, "keys")
		obj := make(Object, len(keys))
		for _, k := range keys {
			if rapid.Bool().Draw(t, "nested_"+k) {
				obj[k] = Array(rapid.SliceOfN(genScalar(), 0, 4).Draw(t, "arr_"+k))
			} else {
				obj[k] = genScalar().Draw(t, "val_"+k)
			}
		}
		return obj
	})
}

func TestPropertyIdentifyDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := genPayload().Draw(rt, "payload")

		id1, err := Identify(AssetParams, payload)
		require.NoError(rt, err)
		id2, err := Identify(AssetParams, payload.Clone())
		require.NoError(rt, err)

		if id1 != id2 {
			rt.Fatalf("ids differ: %s vs %s", id1, id2)
		}
	})
}

func TestPropertyCanonicalReparseStable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := genPayload().Draw(rt, "payload")

		first, err := CanonicalPayload(payload)
		require.NoError(rt, err)

		reparsed, err := ParseObject(first)
		require.NoError(rt, err)

		second, err := CanonicalPayload(reparsed)
		require.NoError(rt, err)

		if string(first) != string(second) {
			rt.Fatalf("canonical form not a fixed point:\n%s\n%s", first, second)
		}
	})
}

func TestPropertyIdentifySurvivesReparse(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := genPayload().Draw(rt, "payload")

		id, err := Identify(AssetResults, payload)
		require.NoError(rt, err)

		text, err := CanonicalPayload(payload)
		require.NoError(rt, err)
		reparsed, err := ParseObject(text)
		require.NoError(rt, err)

		again, err := Identify(AssetResults, reparsed)
		require.NoError(rt, err)
		if id != again {
			rt.Fatalf("id changed across reparse: %s vs %s\n%s", id, again, text)
		}
	})
}
