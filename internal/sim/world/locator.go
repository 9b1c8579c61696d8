package world

import "github.com/go-gl/mathgl/mgl64"

// TagLocator maps object tags to world positions. It is owned by the world
// loop goroutine.
type TagLocator struct {
	pos map[string]mgl64.Vec3
}

func NewTagLocator() *TagLocator {
	return &TagLocator{pos: map[string]mgl64.Vec3{}}
}

func (l *TagLocator) Set(tag string, p mgl64.Vec3) { l.pos[tag] = p }

func (l *TagLocator) Remove(tag string) { delete(l.pos, tag) }

func (l *TagLocator) Locate(tag string) (mgl64.Vec3, bool) {
	p, ok := l.pos[tag]
	return p, ok
}
