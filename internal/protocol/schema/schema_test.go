package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateScalars(t *testing.T) {
	tests := []struct {
		name  string
		desc  *Descriptor
		value any
		ok    bool
	}{
		{"string ok", String, "x", true},
		{"string wrong", String, 1.0, false},
		{"number float", Number, 1.5, true},
		{"number int", Number, 3, true},
		{"number wrong", Number, "3", false},
		{"boolean ok", Boolean, false, true},
		{"boolean wrong", Boolean, "false", false},
		{"any null", Any, nil, true},
		{"enum ok", Enum("page", "browser"), "page", true},
		{"enum outside", Enum("page", "browser"), "worker", false},
		{"enum wrong type", Enum("page"), 1.0, false},
		{"array ok", Array(String), []any{"a", "b"}, true},
		{"array bad element", Array(String), []any{"a", 2.0}, false},
		{"array wrong type", Array(String), "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.desc, tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateObjectPresence(t *testing.T) {
	desc := Object(Fields{
		"targetId": String,
		"opener":   Optional(String),
		"viewport": Nullable(Object(Fields{"width": Number})),
	})

	tests := []struct {
		name   string
		value  map[string]any
		errMsg string
	}{
		{"all present", map[string]any{"targetId": "t", "opener": "o", "viewport": map[string]any{"width": 1.0}}, ""},
		{"optional absent", map[string]any{"targetId": "t", "viewport": nil}, ""},
		{"optional null", map[string]any{"targetId": "t", "opener": nil, "viewport": nil}, ""},
		{"unknown field tolerated", map[string]any{"targetId": "t", "viewport": nil, "extra": true}, ""},
		{"nullable absent", map[string]any{"targetId": "t"}, "viewport: missing required field"},
		{"required absent", map[string]any{"viewport": nil}, "targetId: missing required field"},
		{"nested mismatch", map[string]any{"targetId": "t", "viewport": map[string]any{"width": "1"}}, "viewport.width: expected number, got string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(desc, tt.value)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errMsg, err.Error())
		})
	}
}

func TestValidateReportsFirstFieldInKeyOrder(t *testing.T) {
	desc := Object(Fields{"b": String, "a": String})

	err := Validate(desc, map[string]any{})
	require.Error(t, err)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "a", serr.Path)
}

func TestValidateEither(t *testing.T) {
	remote := Either(
		Object(Fields{"objectId": String}),
		Object(Fields{"unserializableValue": Enum("Infinity", "-Infinity", "-0", "NaN")}),
		Object(Fields{"value": Any}),
	)

	assert.NoError(t, Validate(remote, map[string]any{"objectId": "obj-1"}))
	assert.NoError(t, Validate(remote, map[string]any{"unserializableValue": "NaN"}))
	assert.NoError(t, Validate(remote, map[string]any{}), "value is Any and may be absent")

	strict := Either(Object(Fields{"a": String}), Object(Fields{"b": Number}))
	err := Validate(strict, map[string]any{"a": 1.0, "b": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of 2 alternatives")
}

func TestValidateRecursive(t *testing.T) {
	node := Recursive(func(self *Descriptor) *Descriptor {
		return Object(Fields{
			"role":     String,
			"children": Optional(Array(self)),
		})
	})

	tree := map[string]any{
		"role": "document",
		"children": []any{
			map[string]any{"role": "heading"},
			map[string]any{"role": "list", "children": []any{
				map[string]any{"role": "listitem"},
			}},
		},
	}
	assert.NoError(t, Validate(node, tree))

	broken := map[string]any{
		"role": "document",
		"children": []any{
			map[string]any{"role": "list", "children": []any{
				map[string]any{"role": 7.0},
			}},
		},
	}
	err := Validate(node, broken)
	require.Error(t, err)
	assert.Equal(t, "children[0].children[0].role: expected string, got number", err.Error())
}

func TestValidateAtPrefixesPath(t *testing.T) {
	err := ValidateAt("params", Object(Fields{"url": String}), map[string]any{})
	require.Error(t, err)
	assert.Equal(t, "params.url: missing required field", err.Error())
}

func TestExtend(t *testing.T) {
	base := Object(Fields{"url": String})
	extended := base.Extend(Fields{"targetId": String})

	assert.Len(t, base.Fields(), 1, "original must be untouched")
	assert.Len(t, extended.Fields(), 2)
	assert.Error(t, Validate(extended, map[string]any{"url": "about:blank"}))

	union := Either(Object(Fields{"a": String}), Object(Fields{"b": String})).Extend(Fields{"targetId": String})
	assert.Error(t, Validate(union, map[string]any{"a": "x"}))
	assert.NoError(t, Validate(union, map[string]any{"a": "x", "targetId": "t"}))
}
