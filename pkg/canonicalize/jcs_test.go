package canonicalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]string{"cmd": "a < b && c > d"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "a < b && c > d")
}

func TestCanonicalHashOrderIndependent(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"x": []string{"p"}, "y": 1})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"y": 1, "x": []string{"p"}})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestCanonicalHashStructTags(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Size int    `json:"size"`
	}
	h1, err := CanonicalHash(payload{Name: "t", Size: 3})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"name": "t", "size": 3})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.py")
	require.NoError(t, os.WriteFile(path, []byte("def run(args, ctx):\n    return {}\n"), 0o644))

	h1, err := HashFile(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	h2, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
