package preview

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandValidate(t *testing.T) {
	t.Run("valid commands", func(t *testing.T) {
		require.NoError(t, (&Command{Kind: CommandLoadScene, Code: "scene[\"x\"] = 1"}).Validate())
		require.NoError(t, (&Command{Kind: CommandCheckpoint, ID: "c1"}).Validate())
		require.NoError(t, (&Command{Kind: CommandRestore, ID: "c1"}).Validate())
		require.NoError(t, (&Command{Kind: CommandRunCode, Code: "1 + 1"}).Validate())
		require.NoError(t, (&Command{Kind: CommandShutdown}).Validate())
	})

	t.Run("missing code", func(t *testing.T) {
		err := (&Command{Kind: CommandLoadScene}).Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "requires code")
	})

	t.Run("missing checkpoint id", func(t *testing.T) {
		err := (&Command{Kind: CommandRestore}).Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "requires a checkpoint id")
	})

	t.Run("unknown kind", func(t *testing.T) {
		err := (&Command{Kind: "explode"}).Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown command kind")
	})
}

func TestCommandRoundTripOrder(t *testing.T) {
	var buf bytes.Buffer
	writer := NewCommandWriter(&buf)

	sent := []*Command{
		{Kind: CommandLoadScene, Code: "scene[\"x\"] = 1"},
		{Kind: CommandCheckpoint, ID: "c1"},
		{Kind: CommandRunCode, Code: "scene[\"x\"] = 2"},
		{Kind: CommandRestore, ID: "c1"},
		{Kind: CommandShutdown},
	}
	for _, cmd := range sent {
		require.NoError(t, writer.Write(cmd))
	}

	reader := NewCommandReader(&buf)
	for _, want := range sent {
		got, err := reader.Read()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := reader.Read()
	require.ErrorIs(t, err, io.EOF)
}

func TestCommandWriterRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	writer := NewCommandWriter(&buf)
	require.Error(t, writer.Write(&Command{Kind: CommandCheckpoint}))
	require.Zero(t, buf.Len())
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writer := NewResponseWriter(&buf)

	ok := OkResponse(&Command{Kind: CommandCheckpoint, ID: "c1"})
	fail := ErrorResponse(&Command{Kind: CommandRestore, ID: "missing"}, "unknown checkpoint \"missing\"")
	require.NoError(t, writer.Write(&ok))
	require.NoError(t, writer.Write(&fail))

	reader := NewResponseReader(&buf)

	got, err := reader.Read()
	require.NoError(t, err)
	require.True(t, got.Ok())
	require.Equal(t, CommandCheckpoint, got.Kind)
	require.Equal(t, "c1", got.ID)

	got, err = reader.Read()
	require.NoError(t, err)
	require.False(t, got.Ok())
	require.Equal(t, "missing", got.ID)
	require.Contains(t, got.Message, "unknown checkpoint")
}

func TestMalformedLines(t *testing.T) {
	t.Run("command", func(t *testing.T) {
		reader := NewCommandReader(strings.NewReader("{not json}\n"))
		_, err := reader.Read()
		require.Error(t, err)
		require.Contains(t, err.Error(), "malformed command line")
	})

	t.Run("response", func(t *testing.T) {
		reader := NewResponseReader(strings.NewReader("{not json}\n"))
		_, err := reader.Read()
		require.Error(t, err)
		require.Contains(t, err.Error(), "malformed response line")
	})
}
