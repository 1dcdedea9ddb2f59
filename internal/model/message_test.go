package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestNewTurn(t *testing.T) {
	a := NewTurn(RoleUser, "Hello")
	b := NewTurn(RoleUser, "Hello")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, RoleUser, a.Role)
	assert.Equal(t, "Hello", a.Content)
	assert.False(t, a.CreatedAt.IsZero())

	id, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestSettingsWireFormat(t *testing.T) {
	data, err := json.Marshal(Settings{Model: "sonar", PreventExit: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"sonar","prevent_exit":true}`, string(data))
}
