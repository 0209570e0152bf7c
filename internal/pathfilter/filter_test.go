package pathfilter

import (
	"testing"

	"github.com/repoflux/repoflux/schema"
	"github.com/stretchr/testify/assert"
)

func resolve(org schema.Organization, repo schema.Repository) *Filter {
	return Resolve(&org, &repo)
}

func TestNoListsAllowsEverything(t *testing.T) {
	f := resolve(schema.Organization{}, schema.Repository{})
	assert.True(t, f.ShouldProcess("src/main.go"))
	assert.True(t, f.ShouldProcess("Makefile"))
}

func TestDirectoryDeny(t *testing.T) {
	org := schema.Organization{DirectoryDenyList: "vendor\nnode_modules"}
	f := resolve(org, schema.Repository{})

	assert.False(t, f.ShouldProcess("vendor/lib/thing.go"))
	assert.False(t, f.ShouldProcess("node_modules/left-pad/index.js"))
	assert.True(t, f.ShouldProcess("src/thing.go"))
}

func TestDirectoryAllowRequiresMatch(t *testing.T) {
	org := schema.Organization{DirectoryAllowList: "src\ncmd"}
	f := resolve(org, schema.Repository{})

	assert.True(t, f.ShouldProcess("src/app/main.go"))
	assert.True(t, f.ShouldProcess("cmd/run.go"))
	assert.False(t, f.ShouldProcess("docs/guide.md"))
}

func TestDirectoryGlobPatterns(t *testing.T) {
	org := schema.Organization{DirectoryDenyList: "*/generated"}
	f := resolve(org, schema.Repository{})

	assert.False(t, f.ShouldProcess("api/generated/client.go"))
	assert.True(t, f.ShouldProcess("api/handwritten/client.go"))
}

func TestExtensionLists(t *testing.T) {
	org := schema.Organization{
		ExtensionAllowList: "go\npy",
		ExtensionDenyList:  "min.js",
	}
	f := resolve(org, schema.Repository{})

	assert.True(t, f.ShouldProcess("src/main.go"))
	assert.True(t, f.ShouldProcess("tools/gen.py"))
	assert.False(t, f.ShouldProcess("web/app.js"))
	// Paths without an extension skip the extension lists entirely.
	assert.True(t, f.ShouldProcess("Makefile"))
}

func TestExtensionDotStripping(t *testing.T) {
	org := schema.Organization{ExtensionDenyList: ".log"}
	f := resolve(org, schema.Repository{})
	assert.False(t, f.ShouldProcess("out/build.log"))
}

// Repository-level lists replace organization lists of the same kind; they
// are never merged.
func TestRepoOverridesOrgEntirely(t *testing.T) {
	org := schema.Organization{DirectoryDenyList: "vendor"}
	repo := schema.Repository{DirectoryDenyList: "third_party"}
	f := resolve(org, repo)

	// The org's vendor deny no longer applies.
	assert.True(t, f.ShouldProcess("vendor/lib/thing.go"))
	assert.False(t, f.ShouldProcess("third_party/lib/thing.go"))
}

func TestRepoEmptyListFallsBackToOrg(t *testing.T) {
	org := schema.Organization{ExtensionDenyList: "bin"}
	f := resolve(org, schema.Repository{})
	assert.False(t, f.ShouldProcess("dist/tool.bin"))
}

func TestTrailingSlashNormalized(t *testing.T) {
	org := schema.Organization{DirectoryDenyList: "vendor/"}
	f := resolve(org, schema.Repository{})
	assert.False(t, f.ShouldProcess("vendor/lib/thing.go"))
}

func TestDenyWinsOverAllow(t *testing.T) {
	org := schema.Organization{
		DirectoryAllowList: "src",
		DirectoryDenyList:  "src/generated",
	}
	f := resolve(org, schema.Repository{})
	assert.True(t, f.ShouldProcess("src/app/main.go"))
	assert.False(t, f.ShouldProcess("src/generated/stubs.go"))
}
