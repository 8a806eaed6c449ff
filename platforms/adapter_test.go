package platforms

import (
	"testing"

	"cms-publisher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(NewDevToAdapter("http://devto.invalid", nil), NewGhostAdapter(nil))

	adapter, err := registry.Resolve(models.PlatformDevTo)
	require.NoError(t, err)
	assert.Equal(t, 4, adapter.MaxTags())

	_, err = registry.Resolve(models.PlatformWix)
	assert.Error(t, err)

	registry.Register(NewWixAdapter("http://wix.invalid", OAuthApp{}, nil))
	assert.Equal(t, []models.Platform{models.PlatformDevTo, models.PlatformGhost, models.PlatformWix}, registry.Platforms())
}

func TestOnlyOAuthPlatformsRefresh(t *testing.T) {
	t.Parallel()

	var adapters = []Adapter{
		NewDevToAdapter("", nil),
		NewHashnodeAdapter("", nil),
		NewGhostAdapter(nil),
		NewWordPressAdapter("", OAuthApp{}, nil),
		NewWixAdapter("", OAuthApp{}, nil),
	}
	refreshers := map[models.Platform]bool{}
	for _, a := range adapters {
		_, ok := a.(Refresher)
		refreshers[a.Platform()] = ok
	}
	assert.Equal(t, map[models.Platform]bool{
		models.PlatformDevTo:     false,
		models.PlatformHashnode:  false,
		models.PlatformGhost:     false,
		models.PlatformWordPress: true,
		models.PlatformWix:       true,
	}, refreshers)
}
