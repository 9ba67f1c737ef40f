package composite

import (
	"context"
	"errors"

	"standlog/internal/application/port"
)

// Repo 把调用扇出到多个镜像存储；返回第一个错误，但每个存储都会被调用
type Repo struct {
	repos []port.RecordRepository
}

func New(repos ...port.RecordRepository) *Repo {
	// 允许传入 nil，构造时过滤
	out := make([]port.RecordRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) BeginSession(ctx context.Context, s port.CaptureSession) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.BeginSession(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertRecord(ctx context.Context, rec port.StoredRecord) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertRecord(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) EndSession(ctx context.Context, id string, endedMs int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.EndSession(ctx, id, endedMs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.RecordRepository = (*Repo)(nil)
