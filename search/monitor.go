package search

import (
	"github.com/poiesic/ragstore/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterResolve(collections []*core.Collection)
	AfterEmbedding(vector []float32)
	AfterSearch(hits []core.SearchHit)
	AfterFilter(kept []core.SearchHit)
	Finish(hits []core.SearchHit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                    {}
func (n *noopMonitor) AfterResolve(_ []*core.Collection) {}
func (n *noopMonitor) AfterEmbedding(_ []float32)        {}
func (n *noopMonitor) AfterSearch(_ []core.SearchHit)    {}
func (n *noopMonitor) AfterFilter(_ []core.SearchHit)    {}
func (n *noopMonitor) Finish(_ []core.SearchHit)         {}
