package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Getting Started!":   "getting-started",
		"docs/api/v2":        "docs-api-v2",
		"--Already--Slug--":  "already-slug",
		"":                   "page",
		"日本語":                "page",
		"Release 1.2 (beta)": "release-1-2-beta",
	}
	for in, want := range cases {
		require.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestNamerAssignIsCollisionSafe(t *testing.T) {
	t.Parallel()

	n := NewNamer()
	require.Equal(t, "example.com__index.md", n.Assign("Example.com", "/"))
	require.Equal(t, "example.com__docs-install.md", n.Assign("example.com", "/docs/install"))
	require.Equal(t, "example.com__docs-install-2.md", n.Assign("example.com", "/docs/install/"))
	require.Equal(t, "example.com__docs-install-3.md", n.Assign("example.com", "/Docs/Install"))
	require.Equal(t, "docs.example.com__docs-install.md", n.Assign("docs.example.com", "/docs/install"))
	require.Equal(t, "example.com__docs-install-2-2.md", n.Assign("example.com", "/docs-install-2"))
}

func TestNamerIsDeterministic(t *testing.T) {
	t.Parallel()

	paths := []string{"/a", "/a/", "/b", "/A"}
	first, second := NewNamer(), NewNamer()
	for _, p := range paths {
		require.Equal(t, first.Assign("example.com", p), second.Assign("example.com", p))
	}
}

func TestBundleFilename(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	require.Equal(t, "example.com__20240102-020405.md", BundleFilename("example.com", at, FormatCombined))
	require.Equal(t, "site__20240102-020405.zip", BundleFilename("", at, FormatArchive))
}

func TestNamerClaim(t *testing.T) {
	t.Parallel()

	n := NewNamer()
	require.Equal(t, "example.com__a-b-2.md", n.Claim("example.com__a-b-2.md"))
	require.Equal(t, "example.com__a-b-2-2.md", n.Claim("Example.com__A-B-2.md"))
	require.Equal(t, "passwd.md", n.Claim("../../etc/passwd"))
	require.Equal(t, "notes.md", n.Claim(`C:\docs\notes.md`))
	require.Equal(t, "my-page.md", n.Claim("my page"))
	require.Empty(t, n.Claim(""))
	require.Empty(t, n.Claim("../.."))

	// Claimed names block derived ones and the other way round.
	require.Equal(t, "example.com__index.md", n.Claim("example.com__index"))
	require.Equal(t, "example.com__index-2.md", n.Assign("example.com", "/"))
}
