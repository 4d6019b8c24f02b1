package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("")

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "edaconn version 1.2.3\n", out.String())
}

func TestSetVersion(t *testing.T) {
	SetVersion("dev")
	defer SetVersion("")
	assert.Equal(t, "dev", GetVersion())
}
