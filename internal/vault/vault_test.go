package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathIsStableAndPrefixedByDirs(t *testing.T) {
	v := New("/data/vault")
	p := v.Path("abc123", ".jpg")
	require.Equal(t, p, v.Path("abc123", ".jpg"), "path derivation must be deterministic")
	require.Contains(t, p, v.Dirs("abc123"))
	require.Contains(t, p, "abc123.jpg")
}

func TestPathDiffersByStorageKey(t *testing.T) {
	v := New("/data/vault")
	require.NotEqual(t, v.Path("a", ".jpg"), v.Path("b", ".jpg"))
}

func TestExtFromURL(t *testing.T) {
	require.Equal(t, ".jpg", ExtFromURL("https://example.com/art/foo.jpg"))
	require.Equal(t, "", ExtFromURL("https://example.com/art/foo?token=abcdefghijklmnop"))
}

func TestChannelIndexPath(t *testing.T) {
	require.Equal(t, "/data/channel/promoted.idx", ChannelIndexPath("/data/channel", "promoted"))
}
