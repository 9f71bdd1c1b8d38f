package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonbPayload struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func TestJSONB_ScanPopulatesVal(t *testing.T) {
	var col JSONB[*jsonbPayload]

	err := col.Scan([]byte(`{"label": "red", "count": 3}`))
	require.NoError(t, err)
	require.NotNil(t, col.Val)
	assert.Equal(t, "red", col.Val.Label)
	assert.Equal(t, 3, col.Val.Count)
	assert.Equal(t, col.Val, col.GetValue())
}

func TestJSONB_ScanNilLeavesZeroVal(t *testing.T) {
	var col JSONB[*jsonbPayload]

	err := col.Scan(nil)
	require.NoError(t, err)
	assert.Nil(t, col.Val)
}

func TestJSONB_ScanRejectsNonBytes(t *testing.T) {
	var col JSONB[*jsonbPayload]

	err := col.Scan(42)
	assert.Error(t, err)
}

func TestJSONB_ValueMarshalsVal(t *testing.T) {
	col := JSONB[*jsonbPayload]{Val: &jsonbPayload{Label: "blue", Count: 1}}

	v, err := col.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"label": "blue", "count": 1}`, string(v.([]byte)))
}
