package storage

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", "file:"+t.Name()+"?mode=memory&cache=shared", true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendMessageSequencing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "user-1", "typeX", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.MessageCount != 0 {
		t.Fatalf("new session message_count = %d, want 0", sess.MessageCount)
	}

	contents := []string{"hello", "hi there", "follow-up"}
	roles := []string{"user", "assistant", "user"}
	for i := range contents {
		m, err := s.AppendMessage(ctx, sess.ID, roles[i], contents[i], "internal")
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if m.Seq != i+1 {
			t.Fatalf("message %d seq = %d, want %d", i, m.Seq, i+1)
		}
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.MessageCount != 3 {
		t.Fatalf("message_count = %d, want 3", got.MessageCount)
	}

	msgs, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != i+1 || m.Content != contents[i] || m.Role != roles[i] {
			t.Fatalf("message %d = %+v", i, m)
		}
	}
}

func TestAppendToMissingSession(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.AppendMessage(context.Background(), "no-such-session", "user", "x", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCourseSessionLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	courseID := "course-42"
	courseName := "Linear Algebra"
	created, err := s.CreateSession(ctx, "user-1", "course", &courseID, &courseName)
	if err != nil {
		t.Fatalf("create course session: %v", err)
	}

	found, err := s.FindCourseSession(ctx, "user-1", courseID)
	if err != nil {
		t.Fatalf("find course session: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("found session %s, want %s", found.ID, created.ID)
	}
	if found.CourseName == nil || *found.CourseName != courseName {
		t.Fatalf("course name = %v", found.CourseName)
	}

	if _, err := s.FindCourseSession(ctx, "user-2", courseID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign user lookup err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindCourseSession(ctx, "user-1", "other-course"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other course lookup err = %v, want ErrNotFound", err)
	}
}

func TestDriverNames(t *testing.T) {
	cases := []struct{ in, dialect, sqlName string }{
		{"postgres", "postgres", "pgx"},
		{"pgx", "postgres", "pgx"},
		{"Postgres", "postgres", "pgx"},
		{"sqlite", "sqlite", "sqlite"},
		{"sqlite3", "sqlite", "sqlite"},
	}
	for _, c := range cases {
		d := normalizeDriver(c.in)
		if d != c.dialect {
			t.Fatalf("normalizeDriver(%q) = %q, want %q", c.in, d, c.dialect)
		}
		if got := sqlDriverName(d); got != c.sqlName {
			t.Fatalf("sqlDriverName(%q) = %q, want %q", d, got, c.sqlName)
		}
	}
}

func TestSetCourseID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "user-1", "course", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := s.SetCourseID(ctx, sess.ID, "course-42"); err != nil {
		t.Fatalf("set course id: %v", err)
	}
	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CourseID == nil || *got.CourseID != "course-42" {
		t.Fatalf("course id = %v", got.CourseID)
	}

	// An already bound session keeps its course.
	if err := s.SetCourseID(ctx, sess.ID, "course-other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rebind err = %v, want ErrNotFound", err)
	}
	got, err = s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CourseID == nil || *got.CourseID != "course-42" {
		t.Fatalf("course id after rebind attempt = %v", got.CourseID)
	}

	if err := s.SetCourseID(ctx, "missing", "course-42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoteHandleCaching(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	courseID := "course-7"
	sess, err := s.CreateSession(ctx, "user-1", "course", &courseID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.AssistantRemoteID != nil || sess.ThreadRemoteID != nil {
		t.Fatalf("fresh session has remote handles: %+v", sess)
	}

	if err := s.SetRemoteHandles(ctx, sess.ID, "asst_123", "thread_456"); err != nil {
		t.Fatalf("set remote handles: %v", err)
	}
	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.AssistantRemoteID == nil || *got.AssistantRemoteID != "asst_123" {
		t.Fatalf("assistant handle = %v", got.AssistantRemoteID)
	}
	if got.ThreadRemoteID == nil || *got.ThreadRemoteID != "thread_456" {
		t.Fatalf("thread handle = %v", got.ThreadRemoteID)
	}

	if err := s.SetRemoteHandles(ctx, "missing", "a", "t"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "user-1", "references", nil, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.AppendMessage(ctx, sess.ID, "user", "hello", ""); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSession(ctx, sess.ID, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	msgs, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages survived delete: %d", len(msgs))
	}
}

func TestListSessionsByUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, "user-1", "typeX", nil, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateSession(ctx, "user-1", "therapyGPT", nil, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateSession(ctx, "user-2", "typeX", nil, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sessions, want 2", len(got))
	}
	for _, sess := range got {
		if sess.UserID != "user-1" {
			t.Fatalf("foreign session in listing: %+v", sess)
		}
	}
}
