package search

import (
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/index"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Every Start is paired with one Finish; results are nil when the search failed.
type SearchMonitor interface {
	Start(query string, filter core.CategoryFilter)
	AfterFilter(leaves []core.ID, allowed int)
	AfterEmbedding(vector []float32)
	AfterIndexSearch(hits []index.Hit)
	DuplicateDropped(record *core.AnswerRecord, key string)
	Finish(results []*core.RankedAnswer)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.CategoryFilter)           {}
func (n *noopMonitor) AfterFilter(_ []core.ID, _ int)                  {}
func (n *noopMonitor) AfterEmbedding(_ []float32)                      {}
func (n *noopMonitor) AfterIndexSearch(_ []index.Hit)                  {}
func (n *noopMonitor) DuplicateDropped(_ *core.AnswerRecord, _ string) {}
func (n *noopMonitor) Finish(_ []*core.RankedAnswer)                   {}
