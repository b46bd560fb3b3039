package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the durable job store. Every mutation is persisted before it is
// acknowledged, so a job acknowledged to the caller survives a process
// restart (durability-before-ack).
type Store struct {
	path string

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore opens (or creates) the job store at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	s := &Store{
		path: path,
		jobs: make(map[string]*Job),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	log.Info().Int("jobCount", len(s.jobs)).Str("path", path).Msg("Cron job store opened")
	return s, nil
}

// Add validates, creates, and durably persists a new job. The job exists in
// the store before its creation is acknowledged.
func (s *Store) Add(params AddParams, now time.Time) (*Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: job name is required", ErrInvalidJob)
	}
	if params.Message == "" {
		return nil, fmt.Errorf("%w: job message is required", ErrInvalidJob)
	}
	if err := ValidateTrigger(params.Trigger, now); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJob, err.Error())
	}

	nextRun, err := NextRun(params.Trigger, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJob, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Name == params.Name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, params.Name)
		}
	}

	job := &Job{
		ID:        uuid.New().String(),
		Name:      params.Name,
		Message:   params.Message,
		Trigger:   params.Trigger,
		Delivery:  params.Delivery,
		CreatedAt: now.UnixMilli(),
		NextRunAt: nextRun.UnixMilli(),
	}
	s.jobs[job.ID] = job

	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	log.Info().Str("jobId", job.ID).Str("name", job.Name).Msg("Job created")
	return job, nil
}

// Remove deletes a job by ID. Removing an unknown ID fails with
// ErrJobNotFound and leaves the store unchanged.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	delete(s.jobs, id)
	if err := s.persistLocked(); err != nil {
		s.jobs[id] = job
		return fmt.Errorf("failed to persist removal: %w", err)
	}

	log.Info().Str("jobId", id).Str("name", job.Name).Msg("Job removed")
	return nil
}

// Get returns a copy of a job by ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return *job, nil
}

// List returns copies of all jobs sorted by creation time.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	for i := 0; i < len(jobs)-1; i++ {
		for j := i + 1; j < len(jobs); j++ {
			if jobs[j].CreatedAt < jobs[i].CreatedAt {
				jobs[i], jobs[j] = jobs[j], jobs[i]
			}
		}
	}
	return jobs
}

// Due returns copies of all jobs whose next fire time has passed.
func (s *Store) Due(now time.Time) []Job {
	nowMs := now.UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Job
	for _, job := range s.jobs {
		if job.NextRunAt <= nowMs {
			due = append(due, *job)
		}
	}
	return due
}

// Consume marks one due occurrence of a job as fired: a OneTime job is
// removed, a recurring/interval job gets its next fire time recomputed
// strictly after now. The updated state is persisted before returning.
func (s *Store) Consume(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	if job.Trigger.Kind == TriggerAt {
		delete(s.jobs, id)
		if err := s.persistLocked(); err != nil {
			s.jobs[id] = job
			return fmt.Errorf("failed to persist consumption: %w", err)
		}
		return nil
	}

	next, err := NextRun(job.Trigger, now)
	if err != nil {
		return fmt.Errorf("failed to compute next run: %w", err)
	}

	lastRun := now.UnixMilli()
	job.LastRunAt = &lastRun
	job.NextRunAt = next.UnixMilli()

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist consumption: %w", err)
	}
	return nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read jobs file: %w", err)
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to parse jobs file: %w", err)
	}

	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
	return nil
}

// persistLocked saves all jobs via temp file + rename. Caller holds s.mu.
func (s *Store) persistLocked() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
