package chat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	id   uint32
	name string
}

func (f *fakeCaller) ClientID() uint32 { return f.id }
func (f *fakeCaller) Username() string { return f.name }

func newTestContext() (*Context, *[]string) {
	var replies []string
	ctx := NewContext("ABCD", &fakeCaller{id: 1, name: "bob"}, "", func(text string) error {
		replies = append(replies, text)
		return nil
	})
	return ctx, &replies
}

func TestDispatch_BindsOptionalAndRest(t *testing.T) {
	table := NewTable()
	var got map[string]string
	require.NoError(t, table.Register("kick <name> [reason...]", "Kicks a player", func(ctx *Context, args map[string]string) error {
		got = args
		return nil
	}))

	ctx, _ := newTestContext()
	table.Dispatch(ctx, "kick 'big bob' was being mean")

	require.NotNil(t, got)
	assert.Equal(t, "big bob", got["name"])
	assert.Equal(t, "was being mean", got["reason"])
}

func TestDispatch_OptionalAbsent(t *testing.T) {
	table := NewTable()
	var got map[string]string
	require.NoError(t, table.Register("kick <name> [reason...]", "Kicks a player", func(ctx *Context, args map[string]string) error {
		got = args
		return nil
	}))

	ctx, _ := newTestContext()
	table.Dispatch(ctx, "kick bob")

	require.NotNil(t, got)
	assert.Equal(t, "bob", got["name"])
	_, hasReason := got["reason"]
	assert.False(t, hasReason)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	table := NewTable()
	ctx, replies := newTestContext()
	table.Dispatch(ctx, "frobnicate")
	require.Len(t, *replies, 1)
	assert.Equal(t, "No command with name: frobnicate", (*replies)[0])
}

func TestDispatch_MissingRequiredRepliesUsage(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("kick <name> [reason...]", "Kicks a player", func(ctx *Context, args map[string]string) error {
		t.Fatal("handler must not run")
		return nil
	}))

	ctx, replies := newTestContext()
	table.Dispatch(ctx, "kick")
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0], "Usage: /kick <name> [reason...]")
	assert.Contains(t, (*replies)[0], "Kicks a player")
}

func TestDispatch_CallErrorRepliedToCaller(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("boom", "Always fails", func(ctx *Context, args map[string]string) error {
		return Callf("player %q not found", "bob")
	}))

	ctx, replies := newTestContext()
	table.Dispatch(ctx, "boom")
	require.Len(t, *replies, 1)
	assert.Equal(t, `player "bob" not found`, (*replies)[0])
}

func TestDispatch_InternalErrorSwallowed(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("boom", "Always fails", func(ctx *Context, args map[string]string) error {
		return fmt.Errorf("internal failure")
	}))

	ctx, replies := newTestContext()
	table.Dispatch(ctx, "boom")
	assert.Empty(t, *replies, "internal errors are logged, not relayed")
}

func TestHelp_ListsAll(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("kick <name> [reason...]", "Kicks a player", func(ctx *Context, args map[string]string) error {
		return nil
	}))

	ctx, replies := newTestContext()
	table.Dispatch(ctx, "help")
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0], "/help [command]")
	assert.Contains(t, (*replies)[0], "/kick <name> [reason...]")
}

func TestHelp_SingleCommand(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("kick <name> [reason...]", "Kicks a player", func(ctx *Context, args map[string]string) error {
		return nil
	}))

	ctx, replies := newTestContext()
	table.Dispatch(ctx, "help kick")
	require.Len(t, *replies, 1)
	assert.True(t, strings.HasPrefix((*replies)[0], "Usage: /kick"))

	table.Dispatch(ctx, "help nosuch")
	require.Len(t, *replies, 2)
	assert.Equal(t, "No command with name: nosuch", (*replies)[1])
}

func TestRegister_Duplicate(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("x", "first", func(ctx *Context, args map[string]string) error { return nil }))
	assert.Error(t, table.Register("x", "second", func(ctx *Context, args map[string]string) error { return nil }))
}
