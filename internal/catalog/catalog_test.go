package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsConsistent(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Regions, 3)
	assert.Len(t, c.Inspectorates, 5)
	assert.Len(t, c.Posts, 13)

	p, ok := c.Post("hc4")
	require.True(t, ok)
	assert.Equal(t, "CS Butantã", p.Name)
	assert.Equal(t, "MACRO2", p.Region)
	assert.True(t, p.Active())

	inactive, ok := c.Post("hc13")
	require.True(t, ok)
	assert.False(t, inactive.Active())
}

func TestPostsIn_FiltersByRegion(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	for _, p := range c.PostsIn("MACRO3") {
		assert.Equal(t, "MACRO3", p.Region)
	}
	assert.Len(t, c.PostsIn("MACRO3"), 3)
	assert.Len(t, c.PostsIn(""), len(c.Posts))
	assert.Len(t, c.InspectoratesIn("MACRO1"), 2)
}

func TestParse_RejectsBrokenReferences(t *testing.T) {
	src := []byte(`
regions:
  - { id: R1, name: Um }
inspectorates:
  - { id: i1, name: I1, region: R1 }
  - { id: i2, name: I2, region: R9 }
posts:
  - { id: p1, name: P1, region: R1, inspectorate: i2 }
  - { id: p1, name: P1b, region: R1, inspectorate: i1 }
`)
	_, err := Parse(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown region")
	assert.Contains(t, err.Error(), "duplicate post p1")
}

func TestLoad_Windows1252File(t *testing.T) {
	src := []byte("regions:\n  - { id: R1, name: Regi\xe3o }\ninspectorates: []\nposts: []\n")
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, src, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	r, ok := c.Region("R1")
	require.True(t, ok)
	assert.Equal(t, "Região", r.Name)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Posts)
}
