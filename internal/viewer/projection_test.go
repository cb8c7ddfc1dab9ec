package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photowall/internal/models"
)

func rec(name string) models.ImageRecord {
	return models.ImageRecord{Name: name}
}

func TestApplySnapshotOrdersRecords(t *testing.T) {
	p := NewProjection()

	p.ApplySnapshot([]models.ImageRecord{rec("bb.jpeg"), rec("a.jpeg")})

	records := p.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "a.jpeg", records[0].Name)
	assert.Equal(t, "bb.jpeg", records[1].Name)
}

func TestApplyAddedDeduplicatesAgainstSnapshot(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg")})

	assert.False(t, p.ApplyAdded(rec("a.jpeg")))
	assert.True(t, p.ApplyAdded(rec("bb.jpeg")))
	assert.Equal(t, 2, p.Len())
}

func TestJumpToNewPhotoWhenAllShown(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg"), rec("bb.jpeg")})
	p.MarkShown("a.jpeg")
	p.MarkShown("bb.jpeg")

	// viewer is sitting on the first image
	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "a.jpeg", current.Name)

	require.True(t, p.ApplyAdded(rec("ccc.jpeg")))

	current, ok = p.Current()
	require.True(t, ok)
	assert.Equal(t, "ccc.jpeg", current.Name)
}

func TestAdvanceRestoresSavedPositionAfterWrap(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg"), rec("bb.jpeg"), rec("cc.jpeg")})
	p.MarkShown("a.jpeg")
	p.MarkShown("bb.jpeg")
	p.MarkShown("cc.jpeg")

	// move to the middle, then get pulled to a fresh upload
	p.Advance()
	current, _ := p.Current()
	require.Equal(t, "bb.jpeg", current.Name)

	require.True(t, p.ApplyAdded(rec("dddd.jpeg")))
	current, _ = p.Current()
	require.Equal(t, "dddd.jpeg", current.Name)

	// wrapping past the end returns to the saved position
	next, ok := p.Advance()
	require.True(t, ok)
	assert.Equal(t, "bb.jpeg", next.Name)
}

func TestNoJumpWhileUnshownPhotosRemain(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg"), rec("bb.jpeg")})
	p.MarkShown("a.jpeg")

	require.True(t, p.ApplyAdded(rec("ccc.jpeg")))

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "a.jpeg", current.Name)
}

func TestApplyDeletedKeepsCursorOnSurvivingImage(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg"), rec("bb.jpeg"), rec("cc.jpeg")})
	p.Advance() // on bb.jpeg

	require.True(t, p.ApplyDeleted("a.jpeg"))

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "bb.jpeg", current.Name)
}

func TestApplyDeletedOfCurrentImageResetsCursor(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg"), rec("bb.jpeg")})
	p.Advance() // on bb.jpeg

	require.True(t, p.ApplyDeleted("bb.jpeg"))

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "a.jpeg", current.Name)
}

func TestApplyDeletedUnknownNameIsNoop(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg")})

	assert.False(t, p.ApplyDeleted("zz.jpeg"))
	assert.Equal(t, 1, p.Len())
}

func TestAdvanceOnEmptyProjection(t *testing.T) {
	p := NewProjection()

	_, ok := p.Advance()
	assert.False(t, ok)
	_, ok = p.Current()
	assert.False(t, ok)
}

func TestMarkShownForgottenAfterDelete(t *testing.T) {
	p := NewProjection()
	p.ApplySnapshot([]models.ImageRecord{rec("a.jpeg"), rec("bb.jpeg")})
	p.MarkShown("a.jpeg")
	p.MarkShown("bb.jpeg")

	require.True(t, p.ApplyDeleted("a.jpeg"))

	// only bb remains and it is fully shown, so a new photo pulls the
	// cursor straight to it
	require.True(t, p.ApplyAdded(rec("ccc.jpeg")))
	current, _ := p.Current()
	assert.Equal(t, "ccc.jpeg", current.Name)
}
