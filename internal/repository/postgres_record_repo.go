package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/coachnotify/internal/model"
)

// PostgresWorkoutRepo はassigned_workoutsテーブルを読み取るリポジトリ。
type PostgresWorkoutRepo struct {
	db *sql.DB
}

// NewPostgresWorkoutRepo はPostgresWorkoutRepoを生成する。
func NewPostgresWorkoutRepo(db *sql.DB) *PostgresWorkoutRepo {
	return &PostgresWorkoutRepo{db: db}
}

// ListScheduledBetween はscheduled_dateが[from, to)に含まれるワークアウトを返す。
func (r *PostgresWorkoutRepo) ListScheduledBetween(ctx context.Context, from, to time.Time, statuses []model.WorkoutStatus, limit int) ([]*model.Workout, error) {
	statusValues := make([]string, len(statuses))
	for i, s := range statuses {
		statusValues[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_id, trainer_id, title, status, scheduled_date, created_at, updated_at
		 FROM assigned_workouts
		 WHERE scheduled_date >= $1 AND scheduled_date < $2
		   AND status = ANY($3)
		 ORDER BY scheduled_date ASC
		 LIMIT $4`,
		from, to, pq.Array(statusValues), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("リマインド対象ワークアウトの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var workouts []*model.Workout
	for rows.Next() {
		w := &model.Workout{}
		if err := rows.Scan(&w.ID, &w.ClientID, &w.TrainerID, &w.Title, &w.Status,
			&w.ScheduledDate, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ワークアウトの読み取りに失敗しました: %w", err)
		}
		workouts = append(workouts, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ワークアウトの走査に失敗しました: %w", err)
	}
	return workouts, nil
}

// PostgresSessionRepo はsessionsテーブルを読み取るリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// ListStartingBetween はstart_timeが[from, to]に含まれるセッションを返す。
func (r *PostgresSessionRepo) ListStartingBetween(ctx context.Context, from, to time.Time, status model.SessionStatus, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_id, trainer_id, start_time, status,
		        cancellation_reason, last_modified_by, created_at, updated_at
		 FROM sessions
		 WHERE start_time >= $1 AND start_time <= $2
		   AND status = $3
		 ORDER BY start_time ASC
		 LIMIT $4`,
		from, to, string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("リマインド対象セッションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		var reason, modifiedBy sql.NullString
		if err := rows.Scan(&s.ID, &s.ClientID, &s.TrainerID, &s.StartTime, &s.Status,
			&reason, &modifiedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("セッションの読み取りに失敗しました: %w", err)
		}
		s.CancellationReason = nullStringValue(reason)
		s.LastModifiedBy = nullStringValue(modifiedBy)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セッションの走査に失敗しました: %w", err)
	}
	return sessions, nil
}

// PostgresConversationRepo はconversationsテーブルを読み取るリポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// FindByID は指定IDの会話を取得する。見つからない場合はnilを返す。
func (r *PostgresConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	c := &model.Conversation{}
	var participants pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT id, participants, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &participants, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation by ID: %w", err)
	}

	c.Participants = []string(participants)
	return c, nil
}

// compile-time interface checks
var (
	_ WorkoutRepository      = (*PostgresWorkoutRepo)(nil)
	_ SessionRepository      = (*PostgresSessionRepo)(nil)
	_ ConversationRepository = (*PostgresConversationRepo)(nil)
)
