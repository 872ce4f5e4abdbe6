package aggregator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderGolden(t *testing.T) {
	g := goldie.New(t)

	for name, set := range map[string]mapset.Set[string]{
		"two_entry_points": mapset.NewSet("__near_abi_foo", "__near_abi_bar"),
		"no_entry_points":  mapset.NewSet[string](),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := NewSource(set).Render()
			require.NoError(t, err)
			g.Assert(t, name, out)
		})
	}
}

func TestSourceDeclaresEachEntryPointOnce(t *testing.T) {
	names := []string{"__near_abi_a", "__near_abi_c", "__near_abi_b", "__near_abi_d"}
	src := NewSource(mapset.NewSet(names...))
	require.Len(t, src.Decls, len(names))
	require.Len(t, src.Calls, len(names))

	out, err := src.Render()
	require.NoError(t, err)
	text := string(out)
	for _, name := range names {
		assert.Equal(t, 1, strings.Count(text, "fn "+name+"()"), name)
		assert.Equal(t, 1, strings.Count(text, "unsafe { "+name+"() }"), name)
	}
	assert.Less(t, strings.Index(text, "__near_abi_a()"), strings.Index(text, "__near_abi_b()"))
	assert.Less(t, strings.Index(text, "__near_abi_c()"), strings.Index(text, "__near_abi_d()"))
}

func TestSourceRootType(t *testing.T) {
	src := NewSource(mapset.NewSet("__near_abi_foo"))
	assert.Equal(t, []string{"fn __near_abi_foo() -> " + src.RootType + ";"}, src.Decls)

	src = &Source{RootType: "abi::Root", Calls: []string{"unsafe { f() }"}}
	out, err := src.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "let combined_root_abi = abi::Root::combine(root_abis);")
	assert.NotContains(t, string(out), abiRootType)
}

func TestSourceOrderIndependentOfInsertion(t *testing.T) {
	a := mapset.NewSet[string]()
	b := mapset.NewSet[string]()
	for _, n := range []string{"x", "y", "z"} {
		a.Add("__near_abi_" + n)
	}
	for _, n := range []string{"z", "x", "y"} {
		b.Add("__near_abi_" + n)
	}
	assert.Equal(t, NewSource(a), NewSource(b))
}

func TestManifest(t *testing.T) {
	m := &Member{
		ContractPackage: "adder",
		ContractPath:    "/snap/contract",
		Runtime:         map[string]any{"version": "4.1.0"},
	}
	data, err := m.Manifest()
	require.NoError(t, err)

	var doc struct {
		Package struct {
			Name    string `toml:"name"`
			Publish bool   `toml:"publish"`
		} `toml:"package"`
		Bin []struct {
			Name string `toml:"name"`
			Path string `toml:"path"`
		} `toml:"bin"`
		Dependencies map[string]any `toml:"dependencies"`
	}
	require.NoError(t, toml.Unmarshal(data, &doc))

	assert.Equal(t, PackageName, doc.Package.Name)
	assert.False(t, doc.Package.Publish)
	require.Len(t, doc.Bin, 1)
	assert.Equal(t, PackageName, doc.Bin[0].Name)
	assert.Equal(t, "main.rs", doc.Bin[0].Path)

	assert.Equal(t, map[string]any{"path": "/snap/contract", "package": "adder"}, doc.Dependencies["contract"])
	assert.Equal(t, map[string]any{"version": "4.1.0"}, doc.Dependencies["near-sdk"])
	assert.Equal(t, "1.0", doc.Dependencies["serde_json"])
}

func TestManifestPlainRuntimeVersion(t *testing.T) {
	m := &Member{ContractPackage: "adder", ContractPath: "/snap", Runtime: "4.1.0"}
	data, err := m.Manifest()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, toml.Unmarshal(data, &doc))
	deps := doc["dependencies"].(map[string]any)
	assert.Equal(t, "4.1.0", deps["near-sdk"])
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	m := &Member{ContractPackage: "adder", ContractPath: "/snap", Runtime: "4.1.0"}
	require.NoError(t, Generate(dir, m, mapset.NewSet("__near_abi_foo")))

	mainRs, err := os.ReadFile(filepath.Join(dir, "main.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(mainRs), "fn __near_abi_foo() -> near_sdk::__private::AbiRoot;")

	manifest, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	require.NoError(t, err)
	want, err := m.Manifest()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(manifest))
}

func TestGenerateMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	m := &Member{ContractPackage: "adder", ContractPath: "/snap", Runtime: "4.1.0"}
	err := Generate(dir, m, mapset.NewSet[string]())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
