package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortDigest(t *testing.T) {
	full := ShortDigest([]byte("abc"), 0)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", full)
	assert.Equal(t, "ba7816bf8f01cfea", ShortDigest([]byte("abc"), 16))
	assert.Equal(t, full, ShortDigest([]byte("abc"), 100))
}
