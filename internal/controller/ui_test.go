package controller

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUI(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	assert.IsType(t, &SimpleUI{}, NewUI(cmd, false))
	assert.IsType(t, &StyledUI{}, NewUI(cmd, true))
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))

	file, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)

	defer func() { _ = file.Close() }()

	assert.False(t, IsTTY(file), "a regular file is not a terminal")
}
