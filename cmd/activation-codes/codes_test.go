package main

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeFormat = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestGenerateActivationCodeFormat(t *testing.T) {
	code := generateActivationCode("secret", "100001")
	assert.Regexp(t, codeFormat, code)
}

func TestGenerateActivationCodeDeterministic(t *testing.T) {
	a := generateActivationCode("secret", "100001")
	b := generateActivationCode("secret", "100001")
	assert.Equal(t, a, b)

	// Different device or secret yields a different code.
	assert.NotEqual(t, a, generateActivationCode("secret", "100002"))
	assert.NotEqual(t, a, generateActivationCode("other-secret", "100001"))
}

func TestParseDeviceIDsList(t *testing.T) {
	ids, err := parseDeviceIDs("100001, 100002 ,100003", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"100001", "100002", "100003"}, ids)
}

func TestParseDeviceIDsRange(t *testing.T) {
	ids, err := parseDeviceIDs("", "100001-100004", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"100001", "100002", "100003", "100004"}, ids)
}

func TestParseDeviceIDsRangeErrors(t *testing.T) {
	_, err := parseDeviceIDs("", "100001", "")
	require.Error(t, err)

	_, err = parseDeviceIDs("", "abc-def", "")
	require.Error(t, err)

	_, err = parseDeviceIDs("", "100005-100001", "")
	require.Error(t, err)
}

func TestParseDeviceIDsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.csv")
	require.NoError(t, os.WriteFile(path, []byte("100001\n100002\n\n100003\n"), 0o600))

	ids, err := parseDeviceIDs("", "", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"100001", "100002", "100003"}, ids)
}

func TestParseDeviceIDsCSVMissing(t *testing.T) {
	_, err := parseDeviceIDs("", "", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestParseDeviceIDsNoInput(t *testing.T) {
	_, err := parseDeviceIDs("", "", "")
	require.Error(t, err)
}
