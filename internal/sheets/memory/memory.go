// Package memory is a ReportPublisher that keeps the last published table.
package memory

import (
	"context"
	"fmt"
	"sync"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/sheets"
)

type Publisher struct {
	mu        sync.Mutex
	rows      [][]any
	published int
}

func New() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishReport(_ context.Context, r aggregate.Report) (string, error) {
	rows := sheets.ReportRows(r)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = rows
	p.published++
	return fmt.Sprintf("mem:A1:C%d", len(rows)), nil
}

// Rows returns the last published table.
func (p *Publisher) Rows() [][]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]any(nil), p.rows...)
}

// Published counts PublishReport calls.
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

var _ sheets.ReportPublisher = (*Publisher)(nil)
