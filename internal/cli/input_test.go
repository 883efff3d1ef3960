package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader("  hello  \n"))

	got, err := GetSimpleText(reader, "Enter value", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Contains(t, out.String(), "Enter value")
}

func TestGetSimpleText_PartialLineOnEOF(t *testing.T) {
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader("partial"))

	got, err := GetSimpleText(reader, "Enter value", &out)
	require.NoError(t, err)
	assert.Equal(t, "partial", got)
}

func TestGetPassword_UsesStub(t *testing.T) {
	orig := readPassword
	readPassword = func(fd int) ([]byte, error) { return []byte("s3cret"), nil }
	t.Cleanup(func() { readPassword = orig })

	var out bytes.Buffer
	pw, err := GetPassword(&out, "Master password: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), pw)
	assert.Contains(t, out.String(), "Master password:")
}
