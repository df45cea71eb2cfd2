package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol/schema"
)

func TestLookupMethod(t *testing.T) {
	tests := []struct {
		name   string
		want   MethodID
		exists bool
	}{
		{"Target.newPage", TargetNewPage, true},
		{"Page.evaluate", PageEvaluate, true},
		{"Accessibility.getFullAXTree", AccessibilityGetFullAXTree, true},
		{"Page.teleport", MethodUnknown, false},
		{"Nope.enable", MethodUnknown, false},
		{"", MethodUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := LookupMethod(tt.name)
			assert.Equal(t, tt.exists, ok)
			assert.Equal(t, tt.want, id)
			if ok {
				assert.Equal(t, tt.name, id.String())
			}
		})
	}
}

func TestEveryMethodHasSchemas(t *testing.T) {
	for _, id := range Methods() {
		spec := id.Spec()
		require.NotEmpty(t, spec.Name, "method %d has no table entry", id)
		assert.NotNil(t, spec.Params, spec.Qualified())
		assert.NotNil(t, spec.Returns, spec.Qualified())
		_, ok := spec.Domain.Spec()
		assert.True(t, ok, "unknown domain for %s", spec.Qualified())
	}
}

func TestTargetScopedVerbsRequireTargetID(t *testing.T) {
	spec := PageNavigate.Spec()

	err := schema.Validate(spec.Params, map[string]interface{}{"frameId": "f", "url": "about:blank"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targetId")

	assert.NoError(t, schema.Validate(spec.Params, map[string]interface{}{
		"frameId": "f", "url": "about:blank", "targetId": "target-page-1",
	}))

	// Browser-scoped verbs are untouched.
	assert.NoError(t, schema.Validate(TargetNewPage.Spec().Params, map[string]interface{}{}))
}

func TestTargetScopedEventsCarryTargetID(t *testing.T) {
	id, ok := LookupEvent("Network.requestFinished")
	require.True(t, ok)
	assert.Error(t, schema.Validate(id.Spec().Params, map[string]interface{}{"requestId": "1"}))

	created, ok := LookupEvent("Target.targetCreated")
	require.True(t, ok)
	assert.NoError(t, schema.Validate(created.Spec().Params, map[string]interface{}{
		"type": "browser", "targetId": "target-browser", "url": "",
	}))
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("no such target")
	err := Wrap(KindTargetNotFound, base)

	assert.Equal(t, "TargetNotFoundError: no such target", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, KindTargetNotFound, KindOf(fmt.Errorf("call: %w", err)))
	assert.Equal(t, KindInternal, KindOf(base))
	assert.Equal(t, "ProtocolError", KindProtocol.String())
}

func TestPlainAndNormalize(t *testing.T) {
	plain, err := Plain(TargetInfo{Type: "page", TargetID: "target-page-1", URL: "about:blank"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"type": "page", "targetId": "target-page-1", "url": "about:blank"}, plain)

	plain, err = Plain(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, plain)

	params, err := Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, params)

	params, err = Normalize([]byte(`{"enabled":true,"n":2}`))
	require.NoError(t, err)
	assert.Equal(t, true, params["enabled"])
	assert.Equal(t, float64(2), params["n"])

	_, err = Normalize([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestSplitMethod(t *testing.T) {
	domain, verb, ok := SplitMethod("Network.enable")
	assert.True(t, ok)
	assert.Equal(t, DomainNetwork, domain)
	assert.Equal(t, "enable", verb)

	_, _, ok = SplitMethod("Network")
	assert.False(t, ok)
}
