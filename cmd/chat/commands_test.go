package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand("  hello there ")
	require.NoError(t, err)
	assert.Equal(t, command{kind: cmdSend, text: "hello there"}, cmd)

	cmd, err = parseCommand("/pm 0, 2,2 see you")
	require.NoError(t, err)
	assert.Equal(t, cmdPrivate, cmd.kind)
	assert.Equal(t, []int{0, 2}, cmd.indices)
	assert.Equal(t, "see you", cmd.text)

	cmd, err = parseCommand("/pm")
	require.NoError(t, err)
	assert.Empty(t, cmd.indices)

	for line, kind := range map[string]commandKind{"/who": cmdWho, "/quit": cmdQuit, "/exit": cmdQuit, "/help": cmdHelp} {
		cmd, err = parseCommand(line)
		require.NoError(t, err)
		assert.Equal(t, kind, cmd.kind, line)
	}

	_, err = parseCommand("/pm a,1 hi")
	assert.Error(t, err)
	_, err = parseCommand("/pm -1 hi")
	assert.Error(t, err)
	_, err = parseCommand("/shout hi")
	assert.Error(t, err)
}
