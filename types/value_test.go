package types

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_JSONRoundTrip(t *testing.T) {
	raw := `{"flag":true,"n":1.5,"s":"x","list":[1,"two",null],"obj":{"inner":false},"nil":null}`

	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	assert.Equal(t, KindObject, v.Kind())

	obj, ok := v.AsObject()
	require.True(t, ok)
	assert.Equal(t, KindNull, obj["nil"].Kind())

	list, ok := obj["list"].AsArray()
	require.True(t, ok)
	require.Len(t, list, 3)
	s, ok := list[1].AsString()
	assert.True(t, ok)
	assert.Equal(t, "two", s)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestValue_FromAny(t *testing.T) {
	v, err := FromAny(map[string]any{"a": []any{1, "b"}, "c": int64(3)})
	require.NoError(t, err)

	expected := Object(map[string]Value{
		"a": Array(Number(1), String("b")),
		"c": Number(3),
	})
	assert.True(t, expected.Equal(v))

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestValue_CloneIsDeep(t *testing.T) {
	orig := Object(map[string]Value{"list": Array(String("a"))})
	clone := orig.Clone()

	obj, _ := clone.AsObject()
	obj["list"] = String("changed")

	origObj, _ := orig.AsObject()
	assert.Equal(t, KindArray, origObj["list"].Kind())
}

func TestMetadata_MergeExample(t *testing.T) {
	existing := Metadata{"initialKey": String("a"), "sharedKey": String("orig")}
	update := Metadata{"sharedKey": String("new"), "newKey": String("b")}

	merged := existing.Merge(update)

	assert.True(t, merged.Equal(Metadata{
		"initialKey": String("a"),
		"sharedKey":  String("new"),
		"newKey":     String("b"),
	}))
	// inputs untouched
	assert.Equal(t, "orig", mustString(t, existing["sharedKey"]))
	assert.Len(t, update, 2)
}

func TestMetadata_MergeIsShallow(t *testing.T) {
	existing := Metadata{"nested": Object(map[string]Value{"a": Number(1), "b": Number(2)})}
	update := Metadata{"nested": Object(map[string]Value{"a": Number(9)})}

	merged := existing.Merge(update)
	nested, ok := merged["nested"].AsObject()
	require.True(t, ok)
	assert.Len(t, nested, 1)
	_, hasB := nested["b"]
	assert.False(t, hasB)
}

func TestMetadata_MergeNil(t *testing.T) {
	var m Metadata
	assert.Nil(t, m.Merge(nil))
	assert.Len(t, m.Merge(Metadata{"k": Bool(true)}), 1)
}

func TestMetadata_MergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genMetadata := gen.MapOf(gen.Identifier(), gen.AlphaString()).Map(func(m map[string]string) Metadata {
		out := make(Metadata, len(m))
		for k, v := range m {
			out[k] = String(v)
		}
		return out
	})

	properties.Property("right-hand keys always win", prop.ForAll(
		func(left, right Metadata) bool {
			merged := left.Merge(right)
			for k, v := range right {
				if !merged[k].Equal(v) {
					return false
				}
			}
			return true
		},
		genMetadata, genMetadata,
	))

	properties.Property("untouched left keys survive", prop.ForAll(
		func(left, right Metadata) bool {
			merged := left.Merge(right)
			for k, v := range left {
				if _, overwritten := right[k]; overwritten {
					continue
				}
				if !merged[k].Equal(v) {
					return false
				}
			}
			return true
		},
		genMetadata, genMetadata,
	))

	properties.Property("key set is the union", prop.ForAll(
		func(left, right Metadata) bool {
			merged := left.Merge(right)
			union := make(map[string]struct{})
			for k := range left {
				union[k] = struct{}{}
			}
			for k := range right {
				union[k] = struct{}{}
			}
			return len(merged) == len(union)
		},
		genMetadata, genMetadata,
	))

	properties.TestingRun(t)
}

func mustString(t *testing.T, v Value) string {
	t.Helper()
	s, ok := v.AsString()
	require.True(t, ok, "expected string, got %s", v.Kind())
	return s
}
