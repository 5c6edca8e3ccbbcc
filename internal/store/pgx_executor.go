package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxExecutor translates operations into SQL against a pgx pool. Models map
// directly to table names; filters are column equality.
type PgxExecutor struct {
	pool *pgxpool.Pool
}

// NewPgxExecutor constructs an executor over the pool.
func NewPgxExecutor(pool *pgxpool.Pool) *PgxExecutor {
	return &PgxExecutor{pool: pool}
}

// Execute runs the operation. It is the terminal Handler of a Client chain.
func (e *PgxExecutor) Execute(ctx context.Context, op Operation) (Result, error) {
	switch op.Action {
	case ActionCreate:
		return e.insert(ctx, op, false)
	case ActionUpsert:
		return e.insert(ctx, op, true)
	case ActionCreateMany:
		return e.insertMany(ctx, op)
	case ActionUpdate, ActionUpdateMany:
		return e.update(ctx, op)
	case ActionDelete, ActionDeleteMany:
		return e.delete(ctx, op)
	case ActionFindUnique, ActionFindFirst:
		return e.findOne(ctx, op)
	case ActionFindMany:
		return e.findMany(ctx, op)
	case ActionCount:
		return e.count(ctx, op)
	default:
		return Result{}, fmt.Errorf("store: unsupported action %q", op.Action)
	}
}

func (e *PgxExecutor) insert(ctx context.Context, op Operation, upsert bool) (Result, error) {
	cols, args := sortedColumns(op.Args.Data)
	if len(cols) == 0 {
		return Result{}, fmt.Errorf("store: %s %s requires data", op.Action, op.Model)
	}
	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{op.Model}.Sanitize(), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if upsert {
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			if c == "id" {
				continue
			}
			q := pgx.Identifier{c}.Sanitize()
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
		sql += fmt.Sprintf(" ON CONFLICT (id) DO UPDATE SET %s", strings.Join(sets, ", "))
	}
	sql += " RETURNING *"
	return e.queryOne(ctx, sql, args)
}

func (e *PgxExecutor) insertMany(ctx context.Context, op Operation) (Result, error) {
	if len(op.Args.Rows) == 0 {
		return Result{}, fmt.Errorf("store: createMany %s requires rows", op.Model)
	}
	cols, _ := sortedColumns(op.Args.Rows[0])
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	var (
		args   []any
		tuples []string
	)
	for _, row := range op.Args.Rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, row[c])
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		pgx.Identifier{op.Model}.Sanitize(), strings.Join(quoted, ", "), strings.Join(tuples, ", "))
	tag, err := e.pool.Exec(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	return Result{Affected: tag.RowsAffected()}, nil
}

func (e *PgxExecutor) update(ctx context.Context, op Operation) (Result, error) {
	cols, args := sortedColumns(op.Args.Data)
	if len(cols) == 0 {
		return Result{}, fmt.Errorf("store: %s %s requires data", op.Action, op.Model)
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
	}
	where, args := whereClause(op.Args.Where, args)
	sql := fmt.Sprintf("UPDATE %s SET %s%s", pgx.Identifier{op.Model}.Sanitize(), strings.Join(sets, ", "), where)
	if op.Action == ActionUpdate {
		return e.queryOne(ctx, sql+" RETURNING *", args)
	}
	tag, err := e.pool.Exec(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	return Result{Affected: tag.RowsAffected()}, nil
}

func (e *PgxExecutor) delete(ctx context.Context, op Operation) (Result, error) {
	where, args := whereClause(op.Args.Where, nil)
	if where == "" {
		return Result{}, fmt.Errorf("store: %s %s requires a filter", op.Action, op.Model)
	}
	sql := fmt.Sprintf("DELETE FROM %s%s", pgx.Identifier{op.Model}.Sanitize(), where)
	if op.Action == ActionDelete {
		// Return the removed row so the caller sees its prior state.
		return e.queryOne(ctx, sql+" RETURNING *", args)
	}
	tag, err := e.pool.Exec(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	return Result{Affected: tag.RowsAffected()}, nil
}

func (e *PgxExecutor) findOne(ctx context.Context, op Operation) (Result, error) {
	where, args := whereClause(op.Args.Where, nil)
	sql := fmt.Sprintf("SELECT * FROM %s%s LIMIT 1", pgx.Identifier{op.Model}.Sanitize(), where)
	return e.queryOne(ctx, sql, args)
}

func (e *PgxExecutor) findMany(ctx context.Context, op Operation) (Result, error) {
	where, args := whereClause(op.Args.Where, nil)
	sql := fmt.Sprintf("SELECT * FROM %s%s", pgx.Identifier{op.Model}.Sanitize(), where)
	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return Result{}, err
	}
	return Result{Records: records, Affected: int64(len(records))}, nil
}

func (e *PgxExecutor) count(ctx context.Context, op Operation) (Result, error) {
	where, args := whereClause(op.Args.Where, nil)
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", pgx.Identifier{op.Model}.Sanitize(), where)
	var n int64
	if err := e.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return Result{}, err
	}
	return Result{Affected: n}, nil
}

func (e *PgxExecutor) queryOne(ctx context.Context, sql string, args []any) (Result, error) {
	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	record, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return Result{}, err
	}
	return Result{Record: record, Affected: 1}, nil
}

func sortedColumns(data map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(data))
	for c := range data {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = data[c]
	}
	return cols, args
}

func whereClause(where map[string]any, args []any) (string, []any) {
	if len(where) == 0 {
		return "", args
	}
	cols := make([]string, 0, len(where))
	for c := range where {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	conds := make([]string, len(cols))
	for i, c := range cols {
		args = append(args, where[c])
		conds[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
