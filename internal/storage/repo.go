package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

const sessionColumns = "id, user_id, target, course_id, course_name, assistant_remote_id, thread_remote_id, message_count, created_at, updated_at"

func (s *Store) CreateSession(ctx context.Context, userID, target string, courseID, courseName *string) (ChatSession, error) {
	id := uuid.NewString()
	q := s.sql.Insert("chat_sessions").
		Columns("id", "user_id", "target", "course_id", "course_name").
		Values(id, userID, target, courseID, courseName)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ChatSession{}, fmt.Errorf("build create session query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) GetSession(ctx context.Context, id string) (ChatSession, error) {
	return s.getSession(ctx, sq.Eq{"id": id})
}

func (s *Store) GetSessionForUser(ctx context.Context, id, userID string) (ChatSession, error) {
	return s.getSession(ctx, sq.Eq{"id": id, "user_id": userID})
}

// FindCourseSession returns the existing session for (user, course) if one
// exists. Course sessions are idempotent per user and course.
func (s *Store) FindCourseSession(ctx context.Context, userID, courseID string) (ChatSession, error) {
	return s.getSession(ctx, sq.Eq{"user_id": userID, "course_id": courseID})
}

func (s *Store) getSession(ctx context.Context, where sq.Sqlizer) (ChatSession, error) {
	q := s.sql.Select(sessionColumns).From("chat_sessions").Where(where).Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ChatSession{}, fmt.Errorf("build get session query: %w", err)
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChatSession{}, ErrNotFound
		}
		return ChatSession{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]ChatSession, error) {
	q := s.sql.Select(sessionColumns).
		From("chat_sessions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]ChatSession, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

// AppendMessage inserts a message with the next sequence number and bumps the
// session counter in the same transaction.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content, source string) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.sql.Select("message_count").From("chat_sessions").Where(sq.Eq{"id": sessionID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build session count query: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("get session count: %w", err)
	}

	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       count + 1,
		Role:      role,
		Content:   content,
		Source:    source,
	}
	ins := s.sql.Insert("messages").
		Columns("id", "session_id", "seq", "role", "content", "source").
		Values(msg.ID, msg.SessionID, msg.Seq, msg.Role, msg.Content, msg.Source)
	sqlStr, args, err = ins.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build insert message query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	upd := s.sql.Update("chat_sessions").
		Set("message_count", msg.Seq).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"id": sessionID})
	sqlStr, args, err = upd.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build bump session query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return Message{}, fmt.Errorf("bump session count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit append tx: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	q := s.sql.Select("id", "session_id", "seq", "role", "content", "source", "created_at").
		From("messages").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("seq ASC", "created_at ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content, &m.Source, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// SetCourseID binds a course to a session created without one. Sessions that
// already carry a course keep their binding.
func (s *Store) SetCourseID(ctx context.Context, sessionID, courseID string) error {
	q := s.sql.Update("chat_sessions").
		Set("course_id", courseID).
		Where(sq.Eq{"id": sessionID, "course_id": nil})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set course id query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set course id: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetCourseName(ctx context.Context, sessionID, courseName string) error {
	q := s.sql.Update("chat_sessions").
		Set("course_name", courseName).
		Where(sq.Eq{"id": sessionID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set course name query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set course name: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRemoteHandles caches the provider-side assistant and thread ids on the
// session so later turns can reuse them.
func (s *Store) SetRemoteHandles(ctx context.Context, sessionID, assistantID, threadID string) error {
	q := s.sql.Update("chat_sessions").
		Set("assistant_remote_id", assistantID).
		Set("thread_remote_id", threadID).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"id": sessionID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set remote handles query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set remote handles: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes the session and its messages. Messages are deleted
// explicitly so the behavior does not depend on driver-level cascade support.
func (s *Store) DeleteSession(ctx context.Context, sessionID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := s.sql.Delete("messages").Where(sq.Eq{"session_id": sessionID})
	sqlStr, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete messages query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	del = s.sql.Delete("chat_sessions").Where(sq.Eq{"id": sessionID, "user_id": userID})
	sqlStr, args, err = del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete session query: %w", err)
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (ChatSession, error) {
	var sess ChatSession
	var courseID, courseName, assistantID, threadID sql.NullString
	if err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Target,
		&courseID,
		&courseName,
		&assistantID,
		&threadID,
		&sess.MessageCount,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	); err != nil {
		return ChatSession{}, err
	}
	if courseID.Valid {
		sess.CourseID = &courseID.String
	}
	if courseName.Valid {
		sess.CourseName = &courseName.String
	}
	if assistantID.Valid {
		sess.AssistantRemoteID = &assistantID.String
	}
	if threadID.Valid {
		sess.ThreadRemoteID = &threadID.String
	}
	return sess, nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
