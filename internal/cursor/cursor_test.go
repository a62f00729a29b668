package cursor

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	c := Encode("users", 30)
	require.NotEmpty(t, c)

	offset, err := Decode(c, "users")
	require.NoError(t, err)
	assert.Equal(t, 30, offset)
}

func TestDecodeRejectsOtherOperation(t *testing.T) {
	c := Encode("users", 30)

	_, err := Decode(c, "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not-base64!", "users")
	assert.Error(t, err)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("not json")), "users")
	assert.Error(t, err)
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte(`{"v": 9, "op": "users", "off": 1}`))
	_, err := Decode(raw, "users")
	assert.Error(t, err)
}

func TestDecodeRejectsNegativeOffset(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte(`{"v": 1, "op": "users", "off": -5}`))
	_, err := Decode(raw, "users")
	assert.Error(t, err)
}
