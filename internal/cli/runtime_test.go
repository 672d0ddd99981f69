package cli

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvalYAML = `
id: approval
entry: ask
inputs:
  topic: string
nodes:
  - {id: ask, type: interrupt, with: {payload: "approve?"}}
  - {id: done, type: append_message, with: {from: answer}}
edges:
  - {from: ask, to: done}
terminal: [done]
`

const parentYAML = `
id: parent
entry: delegate
nodes:
  - {id: delegate, type: subgraph, with: {graph: child, outputs: [result]}}
terminal: [delegate]
`

const childYAML = `
id: child
entry: work
nodes:
  - {id: work, type: set, with: {values: {result: done}}}
terminal: [work]
`

func writeGraphs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func open(t *testing.T, opts Options) *Runtime {
	t.Helper()
	if opts.LogLevel == "" {
		opts.LogLevel = "error"
	}
	rt, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestResolveGraphID(t *testing.T) {
	t.Run("argument wins", func(t *testing.T) {
		rt := open(t, Options{Dir: writeGraphs(t, map[string]string{"main.yaml": childYAML})})
		id, err := rt.ResolveGraphID([]string{"other"})
		require.NoError(t, err)
		assert.Equal(t, "other", id)
	})

	t.Run("main before the rest", func(t *testing.T) {
		rt := open(t, Options{Dir: writeGraphs(t, map[string]string{
			"main.yaml":  childYAML,
			"extra.yaml": childYAML,
		})})
		id, err := rt.ResolveGraphID(nil)
		require.NoError(t, err)
		assert.Equal(t, "main", id)
	})

	t.Run("single definition", func(t *testing.T) {
		rt := open(t, Options{Dir: writeGraphs(t, map[string]string{"approval.yaml": approvalYAML})})
		id, err := rt.ResolveGraphID(nil)
		require.NoError(t, err)
		assert.Equal(t, "approval", id)
	})

	t.Run("ambiguous", func(t *testing.T) {
		rt := open(t, Options{Dir: writeGraphs(t, map[string]string{
			"a.yaml": childYAML,
			"b.yaml": childYAML,
		})})
		_, err := rt.ResolveGraphID(nil)
		assert.ErrorContains(t, err, "several graphs")
	})

	t.Run("empty", func(t *testing.T) {
		rt := open(t, Options{Dir: t.TempDir()})
		_, err := rt.ResolveGraphID(nil)
		assert.ErrorContains(t, err, "no graph definitions")
	})
}

func TestOptions_EncryptionKey(t *testing.T) {
	raw := "01234567890123456789012345678901"

	cases := map[string]string{
		"raw":    raw,
		"hex":    hex.EncodeToString([]byte(raw)),
		"base64": base64.StdEncoding.EncodeToString([]byte(raw)),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			key, err := Options{EncryptionKey: encoded}.encryptionKey()
			require.NoError(t, err)
			assert.Equal(t, []byte(raw), key)
		})
	}

	key, err := Options{}.encryptionKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	_, err = Options{EncryptionKey: "short"}.encryptionKey()
	assert.Error(t, err)
}

func TestRuntime_FileStore(t *testing.T) {
	dir := writeGraphs(t, map[string]string{"approval.yaml": approvalYAML})
	rt := open(t, Options{Dir: dir})
	ctx := context.Background()

	eng, err := rt.Graph("approval")
	require.NoError(t, err)

	_, err = eng.Run(ctx, "bad", domain.State{"topic": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input of graph approval")

	res, err := eng.Run(ctx, "r1", domain.State{"topic": "release"})
	require.NoError(t, err)
	require.True(t, res.Suspended())
	assert.FileExists(t, filepath.Join(dir, DefaultStoreDir, "r1.json"))

	ids, err := rt.Sessions.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)

	res, err = eng.ResumeRun(ctx, "r1", domain.Update{"answer": "ship"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)

	again, err := rt.Graph("approval")
	require.NoError(t, err)
	assert.Same(t, eng.Engine, again.Engine)
}

func TestRuntime_EncryptedStore(t *testing.T) {
	dir := writeGraphs(t, map[string]string{"approval.yaml": approvalYAML})
	rt := open(t, Options{
		Dir:           dir,
		EncryptionKey: "01234567890123456789012345678901",
		MaskFields:    []string{"topic"},
	})
	ctx := context.Background()

	eng, err := rt.Graph("approval")
	require.NoError(t, err)
	_, err = eng.Run(ctx, "r1", domain.State{"topic": "launch codes"})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, DefaultStoreDir, "r1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "launch codes")

	cp, err := rt.Sessions.Load(ctx, "r1")
	require.NoError(t, err)
	assert.NotEqual(t, "launch codes", cp.State["topic"])
}

func TestRuntime_Subgraphs(t *testing.T) {
	rt := open(t, Options{Dir: writeGraphs(t, map[string]string{
		"parent.yaml": parentYAML,
		"child.yaml":  childYAML,
		"loop.yaml": `
id: loop
entry: again
nodes:
  - {id: again, type: subgraph, with: {graph: loop}}
terminal: [again]
`,
	})})

	eng, err := rt.Graph("parent")
	require.NoError(t, err)
	res, err := eng.Run(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", res.State["result"])

	_, err = rt.Engine("loop")
	assert.ErrorContains(t, err, "includes itself")
}

func TestRuntime_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rt := open(t, Options{
		Dir:      writeGraphs(t, map[string]string{"approval.yaml": approvalYAML}),
		RedisURL: "redis://" + mr.Addr(),
	})
	ctx := context.Background()

	eng, err := rt.Graph("approval")
	require.NoError(t, err)
	res, err := eng.Run(ctx, "r1", domain.State{"topic": "release"})
	require.NoError(t, err)
	require.True(t, res.Suspended())

	assert.True(t, mr.Exists(DefaultRedisPrefix+"run:r1"))

	cp, err := rt.Sessions.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, cp.Status)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Options{Dir: t.TempDir(), LogLevel: "chatty"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Dir: t.TempDir(), LogLevel: "error", RedisURL: "::not-a-url"})
	assert.ErrorContains(t, err, "invalid redis url")
}

func TestReadInput(t *testing.T) {
	state, err := ReadInput(`{"topic": "oaks", "n": 2}`)
	require.NoError(t, err)
	assert.Equal(t, "oaks", state["topic"])

	path := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topic: elms\n"), 0o644))
	state, err = ReadInput("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "elms", state["topic"])

	state, err = ReadInput("")
	require.NoError(t, err)
	assert.Empty(t, state)

	_, err = ReadInput("[1, 2")
	assert.Error(t, err)
}
