package hidrive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_AddTo(t *testing.T) {
	tests := []struct {
		name string
		id   Identifier
		want string
	}{
		{"pid only", ByPID("p1"), "pid=p1"},
		{"path only", ByPath("/a/b"), "path=%2Fa%2Fb"},
		{"pid then path", ByPIDAndPath("p1", "/a/b"), "pid=p1&path=%2Fa%2Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.AddTo(NewParams(), "pid", "path").Encode())
		})
	}
}

func TestIdentifier_AddToCustomKeys(t *testing.T) {
	p := ByPIDAndPath("d1", "sub").AddTo(NewParams(), "dir_id", "dir")

	assert.Equal(t, "dir_id=d1&dir=sub", p.Encode())
}

func TestIdentifier_Validate(t *testing.T) {
	require.ErrorIs(t, Identifier{}.Validate(), ErrEmptyIdentifier)
	require.ErrorIs(t, ByPath("").Validate(), ErrEmptyIdentifier)
	assert.NoError(t, ByPID("p").Validate())
	assert.NoError(t, ByPath("/x").Validate())
}

func TestIdentifier_RequirePath(t *testing.T) {
	assert.ErrorIs(t, ByPID("p").requirePath(), ErrPathRequired)
	assert.ErrorIs(t, Identifier{}.requirePath(), ErrEmptyIdentifier)
	assert.NoError(t, ByPIDAndPath("p", "new").requirePath())
}

func TestIdentifier_String(t *testing.T) {
	assert.Equal(t, "p1", ByPID("p1").String())
	assert.Equal(t, "/x", ByPath("/x").String())
	assert.Equal(t, "p1:x", ByPIDAndPath("p1", "x").String())
}
