package scraping

import (
	"context"
	"iter"
	"sync/atomic"
)

// StaticGenerator yields a fixed list of pages.
type StaticGenerator struct {
	infos []URLInfo
	used  atomic.Bool
}

func NewStaticGenerator(infos ...URLInfo) *StaticGenerator {
	return &StaticGenerator{infos: infos}
}

func (g *StaticGenerator) Generate(ctx context.Context) iter.Seq[URLInfo] {
	return func(yield func(URLInfo) bool) {
		if !g.used.CompareAndSwap(false, true) {
			return
		}
		for _, info := range g.infos {
			if ctx.Err() != nil || !yield(info) {
				return
			}
		}
	}
}
