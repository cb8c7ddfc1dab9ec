package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	a := NewAuthority("user1", "admin1")

	assert.Equal(t, LevelAdmin, a.Authorize("admin1"))
	assert.Equal(t, LevelViewer, a.Authorize("user1"))
	assert.Equal(t, LevelNone, a.Authorize("guess"))
	assert.Equal(t, LevelNone, a.Authorize(""))
}

func TestAuthorizeEmptySecretNeverMatches(t *testing.T) {
	a := NewAuthority("", "admin1")

	assert.Equal(t, LevelNone, a.Authorize(""))
	assert.Equal(t, LevelAdmin, a.Authorize("admin1"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "none", LevelNone.String())
	assert.Equal(t, "viewer", LevelViewer.String())
	assert.Equal(t, "admin", LevelAdmin.String())
}
