// Package viewer holds the client side of the wall: a read-only
// projection of the image collection rebuilt purely from the
// broadcast stream, plus the slideshow bookkeeping that decides when
// a viewer gets caught up to newly arrived photos.
package viewer

import (
	"sync"

	"photowall/internal/models"
)

// Projection mirrors the server's ordered collection for one viewer.
// It additionally tracks which images this viewer has already been
// shown; that set is local and never synchronized to the server.
type Projection struct {
	mu          sync.Mutex
	collection  *models.Collection
	shown       map[string]bool
	index       int
	returnIndex int
}

func NewProjection() *Projection {
	return &Projection{
		collection:  models.NewCollection(),
		shown:       make(map[string]bool),
		returnIndex: -1,
	}
}

// ApplySnapshot merges the login snapshot. Records already known from
// earlier events stay as they are.
func (p *Projection) ApplySnapshot(records []models.ImageRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range records {
		p.collection.Add(rec)
	}
}

// ApplyAdded inserts a broadcast image. When every earlier photo has
// already been shown, the slideshow jumps to the new one and
// remembers where it was, so the viewer sees fresh uploads
// immediately without losing its place.
func (p *Projection) ApplyAdded(rec models.ImageRecord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	priorCount := p.collection.Len()
	if !p.collection.Add(rec) {
		return false
	}

	if priorCount > 0 && len(p.shown) == priorCount {
		p.returnIndex = p.index
		p.index = p.collection.IndexOf(rec.Name)
	}
	return true
}

// ApplyDeleted removes a broadcast deletion and re-derives the
// slideshow position, since any cached index may now point at a
// different element.
func (p *Projection) ApplyDeleted(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var current string
	if p.collection.Len() > 0 && p.index < p.collection.Len() {
		current = p.collection.At(p.index).Name
	}

	if !p.collection.Remove(name) {
		return false
	}
	delete(p.shown, name)

	if current != "" && current != name {
		if i := p.collection.IndexOf(current); i >= 0 {
			p.index = i
		}
	} else {
		p.index = 0
	}
	if p.index >= p.collection.Len() {
		p.index = 0
	}
	if p.returnIndex >= p.collection.Len() {
		p.returnIndex = -1
	}
	return true
}

// Current returns the image under the slideshow cursor.
func (p *Projection) Current() (models.ImageRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.collection.Len() == 0 {
		return models.ImageRecord{}, false
	}
	return p.collection.At(p.index), true
}

// Advance moves the slideshow one step. When the show wraps back to
// the beginning after a jump to a fresh photo, it returns to the
// saved position instead.
func (p *Projection) Advance() (models.ImageRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.collection.Len()
	if n == 0 {
		return models.ImageRecord{}, false
	}

	p.index = (p.index + 1) % n
	if p.index == 0 && p.returnIndex >= 0 {
		p.index = p.returnIndex
		p.returnIndex = -1
	}
	return p.collection.At(p.index), true
}

// MarkShown records that the viewer has actually seen an image.
func (p *Projection) MarkShown(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.collection.Contains(name) {
		p.shown[name] = true
	}
}

// Len is the number of images currently on the wall.
func (p *Projection) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collection.Len()
}

// Records returns the ordered image list as this viewer sees it.
func (p *Projection) Records() []models.ImageRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collection.Records()
}
