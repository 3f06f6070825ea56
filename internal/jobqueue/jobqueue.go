/*
Package jobqueue provides a River-based job queue for scheduled host
synchronization passes.

For worker counts, retry policy and scheduling intervals, see
queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/guestsync/internal/syncer"
)

// HostSyncJobArgs represents the arguments for a host synchronization job
type HostSyncJobArgs struct {
	HostID int64 `json:"host_id"`
}

// Kind returns the job kind for River
func (HostSyncJobArgs) Kind() string {
	return "host_sync"
}

// HostSyncWorker runs one synchronization pass per job.
type HostSyncWorker struct {
	river.WorkerDefaults[HostSyncJobArgs]
	orchestrator *syncer.Orchestrator
	config       *QueueConfig
}

// Work executes the pass. A pass reports its own partial failures; the
// job itself only fails when nothing was synchronized at all, so River's
// retry policy retries full outages rather than individual thread errors.
func (w *HostSyncWorker) Work(ctx context.Context, job *river.Job[HostSyncJobArgs]) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	report := w.orchestrator.SyncHost(ctx, job.Args.HostID)

	log.Info().
		Int64("host_id", job.Args.HostID).
		Str("pass_id", report.PassID).
		Int("messages", report.MessagesProcessed).
		Int("replies", report.RepliesSent).
		Int("errors", len(report.Errors)).
		Msg("scheduled sync pass finished")

	if report.ListingsFound == 0 && len(report.Errors) > 0 {
		return fmt.Errorf("sync pass for host %d produced no work: %s", job.Args.HostID, report.Errors[0])
	}
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance. hostIDs become periodic
// jobs: each listed host gets a sync pass every syncInterval; a zero
// interval falls back to the environment profile's default.
func NewJobQueue(databaseURL string, orch *syncer.Orchestrator, hostIDs []int64, syncInterval time.Duration) (*JobQueue, error) {
	config := GetQueueConfig()
	config.ApplySyncInterval(syncInterval)

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &HostSyncWorker{orchestrator: orch, config: config})

	var periodic []*river.PeriodicJob
	for _, hostID := range hostIDs {
		id := hostID
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(config.SyncInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return HostSyncJobArgs{HostID: id}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: config.RunOnStart},
		))
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// QueueHostSyncJob queues an immediate synchronization pass for a host.
func (jq *JobQueue) QueueHostSyncJob(ctx context.Context, hostID int64) error {
	_, err := jq.client.Insert(ctx, HostSyncJobArgs{HostID: hostID}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue host sync job: %w", err)
	}
	return nil
}
