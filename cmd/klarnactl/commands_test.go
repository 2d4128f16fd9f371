package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderID(t *testing.T) {
	id, err := parseOrderID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, arg := range []string{"", "abc", "0", "-3"} {
		_, err := parseOrderID(arg)
		assert.Error(t, err, arg)
	}
}

func TestPrintJSON(t *testing.T) {
	defer func() { pretty = false }()

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\"a\":1}\n", buf.String())

	pretty = true
	buf.Reset()
	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestCommandsRequireOneOrderID(t *testing.T) {
	for _, c := range []*cobra.Command{importCmd, payloadCmd, stateCmd, reconcileCmd, auditCmd} {
		assert.Error(t, c.Args(c, nil), c.Name())
		assert.Error(t, c.Args(c, []string{"1", "2"}), c.Name())
		assert.NoError(t, c.Args(c, []string{"1"}), c.Name())
	}
}
