package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Validate_ValidUUID(t *testing.T) {
	id := ID("550e8400-e29b-41d4-a716-446655440000")
	assert.NoError(t, id.Validate())
}

func TestID_Validate_EmptyString(t *testing.T) {
	err := ID("").Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestID_Validate_InvalidFormat(t *testing.T) {
	err := ID("not-a-uuid").Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ID format")
}

func TestNewID_GeneratesValidUUID(t *testing.T) {
	assert.NoError(t, NewID().Validate())
	assert.NotEqual(t, NewID(), NewID())
}

func TestGenerateID_Prefix(t *testing.T) {
	assert.Regexp(t, `^rule-[0-9a-f-]{36}$`, GenerateID("rule"))
	assert.Len(t, GenerateID(""), 36)
}

func TestAPIResponse_JSON(t *testing.T) {
	data, err := json.Marshal(NewSuccessResponse(map[string]int{"n": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, string(data))

	data, err = json.Marshal(NewErrorResponse("RUL_001", "royalty rule not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"RUL_001","message":"royalty rule not found"}}`, string(data))
}
