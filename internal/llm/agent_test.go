package llm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
)

type failThenSucceedEngine struct {
	fail  bool
	calls int
}

func (e *failThenSucceedEngine) Generate(ctx context.Context, req Request) (Response, error) {
	e.calls++
	if e.fail {
		return Response{}, scriptError("engine failure")
	}
	return Response{Text: `{"relation":"DIRECT"}`}, nil
}

type testOutput struct {
	Relation string `json:"relation"`
}

func TestAgent_Generate_Success(t *testing.T) {
	eng := &failThenSucceedEngine{}
	a := NewAgent(AgentConfig{Name: "t", Model: "m", RequestLimit: 100, RequestLimitPeriod: 60}, eng, NewLimiterRegistry(), nil)

	var out testOutput
	require.NoError(t, a.Generate(context.Background(), "prompt", &out))
	assert.Equal(t, "DIRECT", out.Relation)
	assert.Len(t, a.history, 2, "system prompt omitted here, so user+assistant")
}

func TestAgent_Generate_FailureDropsLastPrompt(t *testing.T) {
	eng := &failThenSucceedEngine{fail: true}
	a := NewAgent(AgentConfig{Name: "t", SystemPrompt: "sys", Model: "m", RequestLimit: 100, RequestLimitPeriod: 60}, eng, NewLimiterRegistry(), nil)

	var out testOutput
	err := a.Generate(context.Background(), "prompt", &out)
	require.Error(t, err)
	assert.Len(t, a.history, 1, "only the system prompt should remain after a failed turn")
	assert.Equal(t, "system", a.history[0].Role)
}

func TestAgent_Generate_DecodeFailureDropsLastPrompt(t *testing.T) {
	eng := &textEngine{text: "not json"}
	a := NewAgent(AgentConfig{Name: "t", Model: "m", RequestLimit: 100, RequestLimitPeriod: 60}, eng, NewLimiterRegistry(), nil)

	var out testOutput
	err := a.Generate(context.Background(), "prompt", &out)
	require.Error(t, err)
	assert.Empty(t, a.history)
}

type textEngine struct{ text string }

func (e *textEngine) Generate(ctx context.Context, req Request) (Response, error) {
	return Response{Text: e.text}, nil
}

func TestAgent_Generate_SupplementaryReparseRecovers(t *testing.T) {
	eng := newScriptedEngine()
	eng.script("primary", "this is not valid json")
	eng.script("supplementary", `{"relation":"INDIRECT"}`)

	a := NewAgent(AgentConfig{
		Name: "t", Model: "primary", RequestLimit: 100, RequestLimitPeriod: 60,
		RequiresSupplementary: true, SupplementaryModel: "supplementary",
	}, eng, NewLimiterRegistry(), nil)

	var out testOutput
	require.NoError(t, a.Generate(context.Background(), "prompt", &out))
	assert.Equal(t, "INDIRECT", out.Relation)
}

func TestAgent_Generate_DumpsRawResponseWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	files := filestore.New(dir)
	dumper := NewRawDumper(files, filepath.Join(dir, "raw"), "article-123")

	eng := &failThenSucceedEngine{}
	a := NewAgent(AgentConfig{Name: "classifier", Model: "m", RequestLimit: 100, RequestLimitPeriod: 60}, eng, NewLimiterRegistry(), dumper)

	var out testOutput
	require.NoError(t, a.Generate(context.Background(), "prompt", &out))

	entries, err := os.ReadDir(filepath.Join(dir, "raw", "article-123"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "classifier_"))

	dumped, err := os.ReadFile(filepath.Join(dir, "raw", "article-123", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, `{"relation":"DIRECT"}`, string(dumped))
}

func TestAgent_Generate_SkipsDumpWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	eng := &failThenSucceedEngine{}
	a := NewAgent(AgentConfig{Name: "classifier", Model: "m", RequestLimit: 100, RequestLimitPeriod: 60}, eng, NewLimiterRegistry(), nil)

	var out testOutput
	require.NoError(t, a.Generate(context.Background(), "prompt", &out))

	_, err := os.Stat(filepath.Join(dir, "raw"))
	assert.True(t, os.IsNotExist(err))
}
