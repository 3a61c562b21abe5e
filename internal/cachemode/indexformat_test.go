package cachemode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexFormatSetAndString(t *testing.T) {
	var f IndexFormat
	require.NoError(t, f.Set("json"))
	assert.Equal(t, IndexFormatJSON, f)
	assert.Equal(t, "json", f.String())

	require.NoError(t, f.Set("bolt"))
	assert.Equal(t, IndexFormatBolt, f)
	assert.Equal(t, "bolt", f.String())
}

func TestIndexFormatSetRejectsUnknownValue(t *testing.T) {
	var f IndexFormat
	assert.Error(t, f.Set("xml"))
}

func TestIndexFormatTypeNameForPflag(t *testing.T) {
	var f IndexFormat
	assert.Equal(t, "IndexFormat", f.Type())
}

func TestIndexFormatDefaultIsBolt(t *testing.T) {
	var f IndexFormat
	assert.Equal(t, IndexFormatBolt, f)
}
