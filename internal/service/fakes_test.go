package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
)

// memObjects is an in-memory core.ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	openErr error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) add(bucket, key, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = []byte(body)
}

func (m *memObjects) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, core.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memObjects) Put(_ context.Context, p core.PutObjectParams) error {
	b, err := io.ReadAll(p.Body)
	if err != nil {
		return err
	}
	m.add(p.Bucket, p.Key, string(b))
	return nil
}

// memResults is an in-memory core.RecordResultRepository with create-if-absent semantics.
type memResults struct {
	mu      sync.Mutex
	rows    map[string]model.RecordResult
	attempt int
	failOn  map[string]error
}

func newMemResults() *memResults {
	return &memResults{rows: map[string]model.RecordResult{}, failOn: map[string]error{}}
}

func (m *memResults) Create(_ context.Context, r *model.RecordResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	if err := m.failOn[r.RecordID]; err != nil {
		return err
	}
	k := r.JobID + "#" + r.RecordID
	if _, ok := m.rows[k]; ok {
		return core.ErrDuplicateRecord
	}
	m.rows[k] = *r
	return nil
}

func (m *memResults) ListByJob(_ context.Context, jobID string) ([]*model.RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RecordResult
	for _, r := range m.rows {
		if r.JobID == jobID {
			cp := r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal() < out[j].Ordinal() })
	return out, nil
}

func (m *memResults) get(jobID, recordID string) (model.RecordResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[jobID+"#"+recordID]
	return r, ok
}

// sliceRows is a RowSource over prepared rows, optionally failing after them.
type sliceRows struct {
	rows []Row
	err  error
	pos  int
}

func (s *sliceRows) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		if s.err != nil {
			return Row{}, s.err
		}
		return Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func nameRows(ns ...string) *sliceRows {
	src := &sliceRows{}
	for _, n := range ns {
		src.rows = append(src.rows, NewRow(map[string]string{"name": n}))
	}
	return src
}
