package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompletionClient struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompletionClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestAssembleHappyPath(t *testing.T) {
	path := writeTemplate(t, "positions={{.OpenPositions}}")
	client := &fakeCompletionClient{response: `[{"symbol":"BTC","action":"hold","reasoning":"wait and see"}]`}
	asm, err := NewAssembler(client, path, "system prompt")
	require.NoError(t, err)

	fd, err := asm.Assemble(context.Background(), Context{}, "max_positions=2")
	require.NoError(t, err)
	require.Len(t, fd.Decisions, 1)
	assert.Equal(t, ActionHold, fd.Decisions[0].Action)
	assert.Equal(t, 1, client.calls)
}

func TestAssemblePropagatesCompletionError(t *testing.T) {
	path := writeTemplate(t, "positions={{.OpenPositions}}")
	client := &fakeCompletionClient{err: errors.New("connection reset")}
	asm, err := NewAssembler(client, path, "system prompt")
	require.NoError(t, err)

	_, err = asm.Assemble(context.Background(), Context{}, "")
	assert.Error(t, err)
}

func TestAssemblePropagatesParseError(t *testing.T) {
	path := writeTemplate(t, "positions={{.OpenPositions}}")
	client := &fakeCompletionClient{response: "no array here"}
	asm, err := NewAssembler(client, path, "system prompt")
	require.NoError(t, err)

	_, err = asm.Assemble(context.Background(), Context{}, "")
	assert.Error(t, err)
}

func TestNewAssemblerRequiresClient(t *testing.T) {
	path := writeTemplate(t, "x")
	_, err := NewAssembler(nil, path, "system")
	assert.Error(t, err)
}
