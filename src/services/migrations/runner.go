package migrations

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"chatify/src/clients/scylla"
	"chatify/src/platform/correlation"
	"chatify/src/platform/validation"
)

// Migration is one idempotent DDL step with a stable identity. The
// (Module, ID) tuple is the dedupe key in the migration history table;
// IDs sort naturally, so declaration order and lexical order agree.
type Migration struct {
	Module     string
	ID         string
	Statements []string
}

const moduleName = "chatify"

// Declared returns the known migrations in apply order. Statements are
// formatted with the target keyspace.
func Declared() []Migration {
	return []Migration{
		{
			Module: moduleName,
			ID:     "001_create_chat_messages",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS %[1]s.chat_messages (
					scope_id text,
					created_at_utc timestamp,
					message_id uuid,
					sender_id text,
					text text,
					origin_replica_id text,
					broker_partition int,
					broker_offset bigint,
					PRIMARY KEY ((scope_id), created_at_utc, message_id)
				) WITH CLUSTERING ORDER BY (created_at_utc ASC, message_id ASC)
					AND compaction = {'class': 'SizeTieredCompactionStrategy'}
					AND compression = {'sstable_compression': 'LZ4Compressor'}`,
			},
		},
	}
}

// Runner applies missing migrations once, at startup. It owns a
// dedicated session that is not bound to the application keyspace, so
// it can create the keyspace itself on a fresh cluster.
type Runner struct {
	scylla            *scylla.Client
	keyspace          string
	replicationFactor int
	migrationTable    string
	failFast          bool
	appliedBy         string
	logger            zerolog.Logger
}

type Options struct {
	ScyllaClient      *scylla.Client `validate:"required"`
	Keyspace          string         `validate:"required,min=1,max=48,alphanum"`
	ReplicationFactor int            `validate:"gte=1,lte=5"`
	MigrationTable    string         `validate:"required,min=1,max=48"`
	FailFast          bool
	AppliedBy         string `validate:"required,notblank,max=256"`
	Logger            zerolog.Logger
}

func NewRunner(opts *Options) (*Runner, error) {
	if err := validation.Instance.Struct(opts); err != nil {
		return nil, fmt.Errorf("can't create migration runner: invalid options: %w", err)
	}

	return &Runner{
		scylla:            opts.ScyllaClient,
		keyspace:          opts.Keyspace,
		replicationFactor: opts.ReplicationFactor,
		migrationTable:    opts.MigrationTable,
		failFast:          opts.FailFast,
		appliedBy:         opts.AppliedBy,
		logger:            opts.Logger,
	}, nil
}

// Start opens the runner's own session, applies the schema and closes
// the session again. The runner holds no connection afterwards.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.scylla.Start(ctx); err != nil {
		return fmt.Errorf("migration runner failed to connect: %w", err)
	}
	defer r.scylla.Stop(ctx)

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func (r *Runner) Stop(_ context.Context) {}

// Run ensures the keyspace and the migration history table, then applies
// every declared migration that has no history record, in order. With
// FailFast the first failure aborts; otherwise failures are logged and
// the remaining migrations still run.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.ensureKeyspace(ctx); err != nil {
		return err
	}
	if err := r.ensureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := r.listApplied(ctx)
	if err != nil {
		return err
	}

	todo := Pending(Declared(), applied)
	if len(todo) == 0 {
		r.logger.Info().Msg("schema is up to date")
		return nil
	}

	var firstErr error
	for _, migration := range todo {
		if err := r.apply(ctx, migration); err != nil {
			if r.failFast {
				return err
			}
			r.logger.Error().Err(err).Msgf("migration '%s/%s' failed, continuing", migration.Module, migration.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.logger.Info().Msgf("migration '%s/%s' applied", migration.Module, migration.ID)
	}

	return firstErr
}

// Pending filters declared migrations down to those without a history
// record, preserving declaration order.
func Pending(declared []Migration, applied map[string]struct{}) []Migration {
	todo := make([]Migration, 0, len(declared))
	for _, migration := range declared {
		if _, done := applied[migration.Module+"/"+migration.ID]; !done {
			todo = append(todo, migration)
		}
	}
	return todo
}

func (r *Runner) ensureKeyspace(ctx context.Context) error {
	statement := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': %d}`,
		r.keyspace, r.replicationFactor,
	)
	if err := r.scylla.Driver.Query(statement).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to ensure keyspace '%s': %w", r.keyspace, err)
	}
	return nil
}

func (r *Runner) ensureMigrationTable(ctx context.Context) error {
	statement := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.%s (
			module_name text,
			migration_id text,
			applied_at_utc timestamp,
			applied_by text,
			PRIMARY KEY ((module_name), migration_id)
		)`,
		r.keyspace, r.migrationTable,
	)
	if err := r.scylla.Driver.Query(statement).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to ensure migration table '%s': %w", r.migrationTable, err)
	}
	return nil
}

func (r *Runner) listApplied(ctx context.Context) (map[string]struct{}, error) {
	statement := fmt.Sprintf(`SELECT module_name, migration_id FROM %s.%s`, r.keyspace, r.migrationTable)

	applied := make(map[string]struct{})
	iter := r.scylla.Driver.Query(statement).WithContext(ctx).Iter()

	var module, id string
	for iter.Scan(&module, &id) {
		applied[module+"/"+id] = struct{}{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}

	return applied, nil
}

func (r *Runner) apply(ctx context.Context, migration Migration) error {
	for _, template := range migration.Statements {
		statement := fmt.Sprintf(template, r.keyspace)
		if err := r.scylla.Driver.Query(statement).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("migration '%s/%s' failed: %w", migration.Module, migration.ID, err)
		}
	}

	record := fmt.Sprintf(
		`INSERT INTO %s.%s (module_name, migration_id, applied_at_utc, applied_by) VALUES (?, ?, ?, ?)`,
		r.keyspace, r.migrationTable,
	)
	err := r.scylla.Driver.
		Query(record, migration.Module, migration.ID, correlation.NowUTC(), r.appliedBy).
		WithContext(ctx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to record migration '%s/%s': %w", migration.Module, migration.ID, err)
	}

	return nil
}
