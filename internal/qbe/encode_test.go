package qbe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/models"
)

func sampleDefinition() models.QueryDefinition {
	return models.QueryDefinition{
		Rows: []models.QueryRow{
			{Model: "auth.User", Field: "email", Show: true, Sort: models.SortAscending},
			{Model: "auth.User", Field: "is_active", Criteria: &models.Criteria{Operator: models.OperatorExact, Value: "1"}},
		},
		Limit: 100,
	}
}

func TestHash_Deterministic(t *testing.T) {
	first, err := QueryHash(sampleDefinition())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := QueryHash(sampleDefinition())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Len(t, first, 32)
}

func TestHash_DiffersForDifferentDefinitions(t *testing.T) {
	a, err := QueryHash(sampleDefinition())
	require.NoError(t, err)

	changed := sampleDefinition()
	changed.Limit = 10
	b, err := QueryHash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEncodeDecode_PreservesHash(t *testing.T) {
	data, err := Encode(sampleDefinition())
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, sampleDefinition(), decoded)

	again, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, Hash(data), Hash(again))
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "qbe_query_abc", SessionKey("abc"))
}
