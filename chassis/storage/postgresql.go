package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

const returningTask = `t.id, t.cron, t.status, t.create_date, t.updated_dt, t.order_name, t.picking_id,
	t.main_operation_type, coalesce(t.line_data::text, '{}'), t.weight, t.length, t.width, t.height,
	coalesce(t.error, ''), coalesce(t.msg, ''), coalesce(t.process_error, ''), coalesce(t.log, ''),
	t.status_updated_to_oms, coalesce(t.oms_response_message, '')`

// PGRepository - ...
type PGRepository struct {
	pool *pgxpool.Pool
}

// InitPGRepository - ...
func InitPGRepository(cfg Config) (*PGRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	return &PGRepository{
		pool: pool,
	}, nil
}

// Close releases the pool.
func (repo *PGRepository) Close() {
	repo.pool.Close()
}

// Enqueue - inserts a pending task
func (repo *PGRepository) Enqueue(ctx context.Context, task *Task) (int64, error) {
	query := `
	insert into t_packaging_order(
		cron, status, order_name, picking_id, main_operation_type, line_data,
		weight, length, width, height
	) values ($1, 'pending', $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
	returning id`
	var id int64
	err := repo.pool.QueryRow(ctx, query,
		task.Cron, task.OrderName, task.PickingID, task.OperationType, task.LineData,
		task.Weight, task.Length, task.Width, task.Height,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateTask
		}
		return 0, &StoreError{Op: "enqueue", Err: err}
	}
	return id, nil
}

// ClaimOldestPending - serializes claims per lane with an advisory lock held
// for the transaction, so two drainers can never pick rows of one lane out of order.
func (repo *PGRepository) ClaimOldestPending(ctx context.Context, cron string) (*Task, error) {
	tx, err := repo.pool.Begin(ctx)
	if err != nil {
		return nil, &StoreError{Op: "claim", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, cron); err != nil {
		return nil, &StoreError{Op: "claim", Err: err}
	}
	query := `
	with task as (
		select id from t_packaging_order
		where cron = $1 and status = 'pending'
			and not exists (
				select 1 from t_packaging_order
				where cron = $1 and status = 'processing'
			)
		order by create_date asc, id asc
		limit 1 for update
	) update t_packaging_order as t
	set
		status = 'processing',
		updated_dt = localtimestamp
	from task
	where t.id = task.id
	returning ` + returningTask
	task, err := scanTask(tx.QueryRow(ctx, query, cron))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, &StoreError{Op: "claim", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &StoreError{Op: "claim", Err: err}
	}
	return task, nil
}

// HasPending - ...
func (repo *PGRepository) HasPending(ctx context.Context, cron string) (bool, error) {
	var exists bool
	query := `select exists(select 1 from t_packaging_order where cron = $1 and status = 'pending')`
	if err := repo.pool.QueryRow(ctx, query, cron).Scan(&exists); err != nil {
		return false, &StoreError{Op: "has_pending", Err: err}
	}
	return exists, nil
}

// PendingLanes - lanes with at least one pending task, oldest work first
func (repo *PGRepository) PendingLanes(ctx context.Context) ([]string, error) {
	query := `
	select cron from t_packaging_order
	where status = 'pending'
	group by cron
	order by min(create_date) asc`
	rows, err := repo.pool.Query(ctx, query)
	if err != nil {
		return nil, &StoreError{Op: "pending_lanes", Err: err}
	}
	defer rows.Close()
	var lanes []string
	for rows.Next() {
		var cron string
		if err := rows.Scan(&cron); err != nil {
			return nil, &StoreError{Op: "pending_lanes", Err: err}
		}
		lanes = append(lanes, cron)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "pending_lanes", Err: err}
	}
	return lanes, nil
}

// WriteStatus - atomic partial update
func (repo *PGRepository) WriteStatus(ctx context.Context, id int64, fields Fields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, string(col))
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		val := fields[Column(col)]
		if status, ok := val.(Status); ok {
			val = string(status)
		}
		args = append(args, val)
	}
	sets = append(sets, "updated_dt = localtimestamp")
	args = append(args, id)
	query := fmt.Sprintf(`update t_packaging_order set %s where id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := repo.pool.Exec(ctx, query, args...)
	if err != nil {
		return &StoreError{Op: "write_status", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &StoreError{Op: "write_status", Err: ErrTaskNotFound}
	}
	return nil
}

// RepairStaleTasks - processing rows abandoned by a crashed drainer become failed
func (repo *PGRepository) RepairStaleTasks(ctx context.Context, timeout int, batchSize int) (int, error) {
	query := `
	with tasks as (
		select id
		from t_packaging_order where status = 'processing' and updated_dt < localtimestamp - concat($1::int, ' seconds')::INTERVAL
		limit $2 for update skip locked
	) update t_packaging_order
	set
		status = 'failed',
		process_error = 'stale task',
		updated_dt = localtimestamp
	from tasks
	where t_packaging_order.id = tasks.id;
	`
	cmdTag, err := repo.pool.Exec(ctx, query, timeout, batchSize)
	if err != nil {
		return 0, &StoreError{Op: "repair", Err: err}
	}
	return int(cmdTag.RowsAffected()), nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var task Task
	var status string
	err := row.Scan(
		&task.ID,
		&task.Cron,
		&status,
		&task.CreateDate,
		&task.UpdatedDt,
		&task.OrderName,
		&task.PickingID,
		&task.OperationType,
		&task.LineData,
		&task.Weight,
		&task.Length,
		&task.Width,
		&task.Height,
		&task.Error,
		&task.Msg,
		&task.ProcessError,
		&task.Log,
		&task.SyncedToOMS,
		&task.OMSResponse,
	)
	if err != nil {
		return nil, err
	}
	task.Status = Status(status)
	return &task, nil
}
