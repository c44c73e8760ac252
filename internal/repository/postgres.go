// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/vmelnikov/rewardhub-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrTaskNotFound возвращается, если задание не найдено.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAlreadyCompleted возвращается при повторной попытке выполнить уже зачтённое задание.
	ErrAlreadyCompleted = errors.New("task already completed by user")
	// ErrTaskLimitReached возвращается, когда задание исчерпало лимит выполнений.
	ErrTaskLimitReached = errors.New("task completion limit reached")
	// ErrDuplicateSubmission возвращается при повторной заявке на проверку того же задания.
	ErrDuplicateSubmission = errors.New("pending submission already exists")
	// ErrSubmissionNotFound возвращается, если заявка с указанной позицией не найдена.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAlreadyReferred возвращается, если приглашение для пользователя уже обработано.
	ErrAlreadyReferred = errors.New("user already referred")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrWithdrawalNotFound возвращается, если заявка на вывод не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrWithdrawalNotPending возвращается при попытке перевести заявку из терминального статуса.
	ErrWithdrawalNotPending = errors.New("withdrawal is not pending")
)

// maxProcessedEvents ограничивает историю обработанных событий на пользователя.
const maxProcessedEvents = 100

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сериализационных сбоях, дедлоках и сетевых ошибках.
// Конфликты бизнес-логики (sentinel-ошибки) не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// EnsureUser создаёт пользователя при первом обращении и возвращает его запись.
func (r *PostgresRepository) EnsureUser(ctx context.Context, userID string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id) VALUES ($1)
		 ON CONFLICT (id) DO UPDATE SET last_activity = now()
		 RETURNING id, balance, referred_by, referral_processed, referral_count, created_at, last_activity`,
		userID,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Balance, &u.ReferredBy, &u.ReferralProcessed, &u.ReferralCount, &u.CreatedAt, &u.LastActivity)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	return &u, nil
}

// applyLedger изменяет баланс пользователя и добавляет запись журнала
// одной атомарной группой под блокировкой строки пользователя.
// Отрицательный amount, приводящий к отрицательному балансу, отклоняется.
func applyLedger(ctx context.Context, tx pgx.Tx, userID string, amount int64, txType, description string) (int64, error) {
	var before int64
	err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&before)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock user: %w", err)
	}

	after := before + amount
	if amount < 0 && after < 0 {
		return 0, ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET balance = $2, last_activity = now() WHERE id = $1`,
		userID, after,
	)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, amount, type, description, balance_before, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, amount, txType, description, before, after,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	return after, nil
}

// Credit начисляет баллы пользователю и добавляет запись журнала.
func (r *PostgresRepository) Credit(ctx context.Context, userID string, amount int64, txType, description string) (int64, error) {
	var newBalance int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		newBalance, err = applyLedger(ctx, tx, userID, amount, txType, description)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return newBalance, err
}

// GetTransactions возвращает журнал пользователя, новые записи первыми.
func (r *PostgresRepository) GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, type, description, balance_before, balance_after, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SaveTask создаёт или обновляет задание. Статус существующего задания не затирается.
func (r *PostgresRepository) SaveTask(ctx context.Context, t *model.Task) error {
	status := t.Status
	if status == "" {
		status = model.TaskStatusActive
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (id, title, type, amount, task_limit, link, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, type = EXCLUDED.type, amount = EXCLUDED.amount,
		     task_limit = EXCLUDED.task_limit, link = EXCLUDED.link`,
		t.ID, t.Title, t.Type, t.Amount, t.TaskLimit, t.Link, string(status),
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	return nil
}

const taskColumns = `t.id, t.title, t.type, t.amount, t.task_limit, t.link, t.status, t.created_at,
	(SELECT COUNT(*) FROM task_completions c WHERE c.task_id = t.id) AS completions`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Type, &t.Amount, &t.TaskLimit, &t.Link, &status, &t.CreatedAt, &t.Completions)
	if err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	return &t, nil
}

// GetTask возвращает задание по идентификатору вместе с числом выполнений.
func (r *PostgresRepository) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, taskID)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	return t, nil
}

// GetTasks возвращает все задания.
func (r *PostgresRepository) GetTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks t ORDER BY t.created_at`)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var res []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteTask удаляет задание вместе с заявками и отметками о выполнении.
func (r *PostgresRepository) DeleteTask(ctx context.Context, taskID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// CompleteTask записывает выполнение задания пользователем одной транзакцией:
// проверка «ещё не выполнял» и проверка лимита выполняются под блокировкой
// строки задания, затем добавляется отметка о выполнении. Возвращает сумму
// вознаграждения и название задания, прочитанные под той же блокировкой.
func (r *PostgresRepository) CompleteTask(ctx context.Context, taskID, userID string) (int64, string, error) {
	var (
		amount int64
		title  string
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var taskLimit int
		err = tx.QueryRow(ctx,
			`SELECT amount, title, task_limit FROM tasks WHERE id = $1 FOR UPDATE`,
			taskID,
		).Scan(&amount, &title, &taskLimit)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("lock task: %w", err)
		}

		var completed bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM task_completions WHERE task_id = $1 AND user_id = $2)`,
			taskID, userID,
		).Scan(&completed)
		if err != nil {
			return fmt.Errorf("check completion: %w", err)
		}
		if completed {
			return ErrAlreadyCompleted
		}

		var completions int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM task_completions WHERE task_id = $1`,
			taskID,
		).Scan(&completions)
		if err != nil {
			return fmt.Errorf("count completions: %w", err)
		}
		if taskLimit > 0 && completions >= taskLimit {
			return ErrTaskLimitReached
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO task_completions (task_id, user_id) VALUES ($1, $2)`,
			taskID, userID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyCompleted
			}
			return fmt.Errorf("insert completion: %w", err)
		}

		// Снятая этим выполнением заявка на проверку больше не нужна.
		_, err = tx.Exec(ctx,
			`DELETE FROM pending_approvals WHERE task_id = $1 AND user_id = $2`,
			taskID, userID,
		)
		if err != nil {
			return fmt.Errorf("clear submission: %w", err)
		}

		if taskLimit > 0 && completions+1 >= taskLimit {
			_, err = tx.Exec(ctx,
				`UPDATE tasks SET status = $2 WHERE id = $1`,
				taskID, string(model.TaskStatusCompleted),
			)
			if err != nil {
				return fmt.Errorf("mark task completed: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return amount, title, err
}

// IsTaskCompleted сообщает, зачтено ли задание пользователю.
func (r *PostgresRepository) IsTaskCompleted(ctx context.Context, taskID, userID string) (bool, error) {
	var completed bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_completions WHERE task_id = $1 AND user_id = $2)`,
		taskID, userID,
	).Scan(&completed)
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return completed, nil
}

// CreateSubmission добавляет заявку на ручную проверку задания.
// Повторная заявка, уже зачтённое задание и исчерпанный лимит отклоняются.
func (r *PostgresRepository) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var taskLimit int
		err = tx.QueryRow(ctx,
			`SELECT task_limit FROM tasks WHERE id = $1 FOR UPDATE`,
			sub.TaskID,
		).Scan(&taskLimit)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("lock task: %w", err)
		}

		var completed bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM task_completions WHERE task_id = $1 AND user_id = $2)`,
			sub.TaskID, sub.UserID,
		).Scan(&completed)
		if err != nil {
			return fmt.Errorf("check completion: %w", err)
		}
		if completed {
			return ErrAlreadyCompleted
		}

		if taskLimit > 0 {
			var completions int
			err = tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM task_completions WHERE task_id = $1`,
				sub.TaskID,
			).Scan(&completions)
			if err != nil {
				return fmt.Errorf("count completions: %w", err)
			}
			if completions >= taskLimit {
				return ErrTaskLimitReached
			}
		}

		evidence := sub.Evidence
		if len(evidence) == 0 {
			evidence = json.RawMessage(`{}`)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO pending_approvals (id, task_id, user_id, evidence) VALUES ($1, $2, $3, $4)`,
			sub.ID, sub.TaskID, sub.UserID, evidence,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("insert submission: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetSubmissions возвращает очередь заявок задания в порядке подачи.
func (r *PostgresRepository) GetSubmissions(ctx context.Context, taskID string) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, task_id, user_id, evidence, submitted_at
		 FROM pending_approvals
		 WHERE task_id = $1
		 ORDER BY submitted_at, id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	defer rows.Close()

	var res []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.TaskID, &s.UserID, &s.Evidence, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// HasPendingSubmission сообщает, есть ли у пользователя заявка на проверку задания.
func (r *PostgresRepository) HasPendingSubmission(ctx context.Context, taskID, userID string) (bool, error) {
	var pending bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pending_approvals WHERE task_id = $1 AND user_id = $2)`,
		taskID, userID,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("check submission: %w", err)
	}
	return pending, nil
}

// TakeSubmission изымает заявку задания по позиции в очереди и возвращает её.
func (r *PostgresRepository) TakeSubmission(ctx context.Context, taskID string, index int) (*model.Submission, error) {
	var taken *model.Submission

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx,
			`SELECT id, task_id, user_id, evidence, submitted_at
			 FROM pending_approvals
			 WHERE task_id = $1
			 ORDER BY submitted_at, id
			 FOR UPDATE`,
			taskID,
		)
		if err != nil {
			return fmt.Errorf("select submissions: %w", err)
		}

		var subs []model.Submission
		for rows.Next() {
			var s model.Submission
			if err := rows.Scan(&s.ID, &s.TaskID, &s.UserID, &s.Evidence, &s.SubmittedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan submission: %w", err)
			}
			subs = append(subs, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if index < 0 || index >= len(subs) {
			return ErrSubmissionNotFound
		}

		s := subs[index]
		if _, err := tx.Exec(ctx, `DELETE FROM pending_approvals WHERE id = $1`, s.ID); err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		taken = &s
		return nil
	})

	return taken, err
}

// ApproveSubmission изымает заявку по позиции в очереди и зачитывает
// выполнение задания одной транзакцией. Проверки «ещё не выполнял» и лимита
// идут под блокировкой строки задания до удаления заявки: если они не
// проходят, заявка остаётся в очереди. Возвращает заявку, сумму
// вознаграждения и название задания.
func (r *PostgresRepository) ApproveSubmission(ctx context.Context, taskID string, index int) (*model.Submission, int64, string, error) {
	var (
		taken  *model.Submission
		amount int64
		title  string
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var taskLimit int
		err = tx.QueryRow(ctx,
			`SELECT amount, title, task_limit FROM tasks WHERE id = $1 FOR UPDATE`,
			taskID,
		).Scan(&amount, &title, &taskLimit)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("lock task: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT id, task_id, user_id, evidence, submitted_at
			 FROM pending_approvals
			 WHERE task_id = $1
			 ORDER BY submitted_at, id
			 FOR UPDATE`,
			taskID,
		)
		if err != nil {
			return fmt.Errorf("select submissions: %w", err)
		}

		var subs []model.Submission
		for rows.Next() {
			var s model.Submission
			if err := rows.Scan(&s.ID, &s.TaskID, &s.UserID, &s.Evidence, &s.SubmittedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan submission: %w", err)
			}
			subs = append(subs, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if index < 0 || index >= len(subs) {
			return ErrSubmissionNotFound
		}
		s := subs[index]

		var completed bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM task_completions WHERE task_id = $1 AND user_id = $2)`,
			taskID, s.UserID,
		).Scan(&completed)
		if err != nil {
			return fmt.Errorf("check completion: %w", err)
		}
		if completed {
			return ErrAlreadyCompleted
		}

		var completions int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM task_completions WHERE task_id = $1`,
			taskID,
		).Scan(&completions)
		if err != nil {
			return fmt.Errorf("count completions: %w", err)
		}
		if taskLimit > 0 && completions >= taskLimit {
			return ErrTaskLimitReached
		}

		if _, err := tx.Exec(ctx, `DELETE FROM pending_approvals WHERE id = $1`, s.ID); err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO task_completions (task_id, user_id) VALUES ($1, $2)`,
			taskID, s.UserID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyCompleted
			}
			return fmt.Errorf("insert completion: %w", err)
		}

		if taskLimit > 0 && completions+1 >= taskLimit {
			_, err = tx.Exec(ctx,
				`UPDATE tasks SET status = $2 WHERE id = $1`,
				taskID, string(model.TaskStatusCompleted),
			)
			if err != nil {
				return fmt.Errorf("mark task completed: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		taken = &s
		return nil
	})

	return taken, amount, title, err
}

// GetTasksWithSubmissions возвращает задания с непустой очередью заявок.
func (r *PostgresRepository) GetTasksWithSubmissions(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks t
		 WHERE EXISTS (SELECT 1 FROM pending_approvals p WHERE p.task_id = t.id)
		 ORDER BY t.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var res []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEventProcessed регистрирует внешний идентификатор события и сообщает,
// встретился ли он впервые. История на пользователя ограничена последними
// maxProcessedEvents записями.
func (r *PostgresRepository) MarkEventProcessed(ctx context.Context, userID, eventID string) (bool, error) {
	var first bool

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`INSERT INTO processed_events (user_id, event_id) VALUES ($1, $2)
			 ON CONFLICT (user_id, event_id) DO NOTHING`,
			userID, eventID,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		first = tag.RowsAffected() == 1

		if first {
			_, err = tx.Exec(ctx,
				`DELETE FROM processed_events
				 WHERE user_id = $1 AND event_id NOT IN (
				     SELECT event_id FROM processed_events
				     WHERE user_id = $1
				     ORDER BY created_at DESC, event_id
				     LIMIT $2
				 )`,
				userID, maxProcessedEvents,
			)
			if err != nil {
				return fmt.Errorf("trim events: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return first, err
}

// CreateReferral фиксирует приглашение и начисляет бонус пригласившему
// одной транзакцией. Проверки «уже приглашён» повторяются по свежим данным
// под блокировкой строки приглашённого; уникальные ограничения закрывают
// гонку двух одновременных событий для одного приглашённого.
func (r *PostgresRepository) CreateReferral(ctx context.Context, referrerID, referredID string, bonus int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var referredBy *string
		var processed bool
		err = tx.QueryRow(ctx,
			`INSERT INTO users (id) VALUES ($1)
			 ON CONFLICT (id) DO UPDATE SET last_activity = now()
			 RETURNING referred_by, referral_processed`,
			referredID,
		).Scan(&referredBy, &processed)
		if err != nil {
			return fmt.Errorf("ensure referred user: %w", err)
		}

		if referredBy != nil || processed {
			return ErrAlreadyReferred
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO referrals (referrer_id, referred_id, bonus_amount) VALUES ($1, $2, $3)`,
			referrerID, referredID, bonus,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyReferred
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return ErrUserNotFound
			}
			return fmt.Errorf("insert referral: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET referred_by = $2, referral_processed = TRUE WHERE id = $1`,
			referredID, referrerID,
		)
		if err != nil {
			return fmt.Errorf("mark referred: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE users SET referral_count = referral_count + 1 WHERE id = $1`,
			referrerID,
		)
		if err != nil {
			return fmt.Errorf("bump referral count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		_, err = applyLedger(ctx, tx, referrerID, bonus, model.TxTypeReferralBonus,
			fmt.Sprintf("Referral bonus for inviting user %s", referredID))
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetReferralsByReferrer возвращает историю приглашений пользователя.
func (r *PostgresRepository) GetReferralsByReferrer(ctx context.Context, referrerID string) ([]model.Referral, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT referrer_id, referred_id, bonus_amount, created_at
		 FROM referrals
		 WHERE referrer_id = $1
		 ORDER BY created_at`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	var res []model.Referral
	for rows.Next() {
		var ref model.Referral
		if err := rows.Scan(&ref.ReferrerID, &ref.ReferredID, &ref.BonusAmount, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		res = append(res, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateWithdrawal списывает баллы и создаёт заявку на вывод одной транзакцией.
// Недостаточный баланс отменяет создание целиком.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = applyLedger(ctx, tx, w.UserID, -w.Amount, model.TxTypeWithdrawal,
			fmt.Sprintf("Withdrawal request %s", w.ID))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO withdrawals (id, user_id, amount, wkc_amount, wallet, status)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			w.ID, w.UserID, w.Amount, w.WkcAmount.String(), w.Wallet, string(model.WithdrawalStatusPending),
		)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

const withdrawalColumns = `id, user_id, amount, wkc_amount, wallet, status, transaction_hash, created_at, approved_at, rejected_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var wkc, status string
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &wkc, &w.Wallet, &status, &w.TransactionHash, &w.CreatedAt, &w.ApprovedAt, &w.RejectedAt)
	if err != nil {
		return nil, err
	}

	w.Status = model.WithdrawalStatus(status)
	w.WkcAmount, err = decimal.NewFromString(wkc)
	if err != nil {
		return nil, fmt.Errorf("parse wkc amount: %w", err)
	}

	return &w, nil
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)

	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}

	return w, nil
}

// ApproveWithdrawal переводит заявку из pending в approved и записывает хэш
// транзакции выплаты. Перевод из терминального статуса запрещён; баланс не
// изменяется — списание произошло при создании заявки.
func (r *PostgresRepository) ApproveWithdrawal(ctx context.Context, id, txHash string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var status string
		err = tx.QueryRow(ctx, `SELECT status FROM withdrawals WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWithdrawalNotFound
			}
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		if status != string(model.WithdrawalStatusPending) {
			return ErrWithdrawalNotPending
		}

		_, err = tx.Exec(ctx,
			`UPDATE withdrawals
			 SET status = $2, transaction_hash = $3, approved_at = now()
			 WHERE id = $1`,
			id, string(model.WithdrawalStatusApproved), txHash,
		)
		if err != nil {
			return fmt.Errorf("approve withdrawal: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// RejectWithdrawal переводит заявку из pending в rejected и возвращает баллы
// пользователю записью журнала withdrawal_refund. Отклонение approved-заявки запрещено.
func (r *PostgresRepository) RejectWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	var rejected *model.Withdrawal

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
		w, err := scanWithdrawal(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWithdrawalNotFound
			}
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		if w.Status != model.WithdrawalStatusPending {
			return ErrWithdrawalNotPending
		}

		_, err = applyLedger(ctx, tx, w.UserID, w.Amount, model.TxTypeWithdrawalRefund,
			"Withdrawal refund - request rejected")
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE withdrawals SET status = $2, rejected_at = now() WHERE id = $1`,
			id, string(model.WithdrawalStatusRejected),
		)
		if err != nil {
			return fmt.Errorf("reject withdrawal: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		w.Status = model.WithdrawalStatusRejected
		rejected = w
		return nil
	})

	return rejected, err
}

// GetPendingWithdrawals возвращает очередь заявок на вывод для оператора.
func (r *PostgresRepository) GetPendingWithdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	return r.selectWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE status = $1 ORDER BY created_at`,
		string(model.WithdrawalStatusPending),
	)
}

// GetWithdrawalsByUser возвращает историю заявок пользователя, новые первыми.
func (r *PostgresRepository) GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error) {
	return r.selectWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

func (r *PostgresRepository) selectWithdrawals(ctx context.Context, query string, args ...any) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	var res []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		res = append(res, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetConfigValue возвращает значение ключа конфигурации или пустую строку.
func (r *PostgresRepository) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM app_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get config value: %w", err)
	}
	return value, nil
}

// SetConfigValue сохраняет значение ключа конфигурации.
func (r *PostgresRepository) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO app_config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config value: %w", err)
	}
	return nil
}

// GetAllConfig возвращает все ключи конфигурации.
func (r *PostgresRepository) GetAllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM app_config`)
	if err != nil {
		return nil, fmt.Errorf("select config: %w", err)
	}
	defer rows.Close()

	res := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		res[k] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetLeaderboard возвращает пользователей с наибольшим балансом.
func (r *PostgresRepository) GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, balance FROM users ORDER BY balance DESC, id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var res []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Balance); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
