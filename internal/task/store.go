// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// VideoConverter - FFmpeg 视频格式转换工具

package task

import (
	"context"
	"sort"
	"sync"

	"github.com/ZSC714725/videoconverter/internal/convert"
	"github.com/ZSC714725/videoconverter/internal/logger"

	"github.com/lithammer/shortuuid/v4"
)

// Store keeps submitted batches in memory and runs each of them in its own
// goroutine.
type Store interface {
	// Submit validates req and starts converting it in the background
	Submit(req convert.Request) (*Batch, error)
	Get(id string) (*Batch, error)
	// List returns batches oldest first. An empty status matches all.
	List(status Status) []*Batch
	Cancel(id string) error
	// Delete cancels the batch if needed, waits for it and forgets it
	Delete(id string) error
	// Shutdown cancels every batch and waits for them or for ctx
	Shutdown(ctx context.Context) error
}

type store struct {
	runner *convert.Runner
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	batches map[string]*Batch
	closed  bool
	mu      sync.RWMutex
}

// NewStore creates a batch store
func NewStore(runner *convert.Runner, log logger.Logger) Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &store{
		runner:  runner,
		logger:  log,
		batches: make(map[string]*Batch),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *store) Submit(req convert.Request) (*Batch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShutdown
	}

	id := shortuuid.New()
	for _, exists := s.batches[id]; exists; _, exists = s.batches[id] {
		id = shortuuid.New()
	}

	b := newBatch(id, req.Clone())
	ctx, cancel := context.WithCancel(s.ctx)
	b.cancel = cancel
	s.batches[id] = b

	go func() {
		defer cancel()
		b.run(ctx, s.runner, s.logger)
	}()

	return b, nil
}

func (s *store) Get(id string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *store) List(status Status) []*Batch {
	s.mu.RLock()
	out := make([]*Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	s.mu.RUnlock()

	if len(status) > 0 {
		filtered := out[:0]
		for _, b := range out {
			if b.Snapshot().Status == status {
				filtered = append(filtered, b)
			}
		}
		out = filtered
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *store) Cancel(id string) error {
	b, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := b.Cancel(); err != nil {
		return err
	}
	s.logger.Info("batch %s cancelled", id)
	return nil
}

func (s *store) Delete(id string) error {
	b, err := s.Get(id)
	if err != nil {
		return err
	}

	b.Cancel()
	<-b.Done()

	s.mu.Lock()
	delete(s.batches, id)
	s.mu.Unlock()

	s.logger.Info("batch %s deleted", id)
	return nil
}

func (s *store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	batches := make([]*Batch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, b)
	}
	s.mu.Unlock()

	for _, b := range batches {
		b.Cancel()
	}
	s.cancel()

	for _, b := range batches {
		select {
		case <-b.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
