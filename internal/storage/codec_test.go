package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalHandles(t *testing.T) {
	payload, err := marshalHandles([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, payload)

	// nil encodes as an empty array, never "null".
	payload, err = marshalHandles(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, payload)
}

func TestUnmarshalHandles(t *testing.T) {
	handles, err := unmarshalHandles(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, handles)

	_, err = unmarshalHandles(`not json`)
	assert.Error(t, err)

	_, err = unmarshalHandles(`{"wrong": "shape"}`)
	assert.Error(t, err)
}
