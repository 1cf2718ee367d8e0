package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"kanban-api/domain"
)

func openTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	st, err := OpenSQL(ctx, DriverSQLite, filepath.Join(t.TempDir(), "kanban.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func testBoard(name, owner string, members ...string) domain.Board {
	ts := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Board{
		ID:        domain.NewID(),
		Name:      name,
		OwnerID:   owner,
		Members:   members,
		ShortLink: domain.NewID()[18:],
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func testList(boardID, name string, pos int) domain.List {
	ts := time.Now().UTC()
	return domain.List{ID: domain.NewID(), Name: name, Pos: pos, BoardID: boardID, Limits: domain.DefaultListLimits(), CreatedAt: ts, UpdatedAt: ts}
}

func testTask(l domain.List) domain.Task {
	ts := time.Now().UTC()
	return domain.Task{ID: domain.NewID(), Title: "task", ListID: l.ID, BoardID: l.BoardID, CreatedAt: ts, UpdatedAt: ts}
}

func TestSQLBoardRoundTrip(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	b := testBoard("Sprint 1", "u1", "u3", "u2")
	b.Description = "first sprint"
	b.IsPrivate = true
	if err := st.InsertBoard(ctx, b); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := st.GetBoard(ctx, b.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Name != b.Name || got.Description != b.Description || !got.IsPrivate || got.ShortLink != b.ShortLink {
		t.Fatalf("unexpected board: %#v", got)
	}
	if len(got.Members) != 2 || got.Members[0] != "u3" || got.Members[1] != "u2" {
		t.Fatalf("member order not kept: %v", got.Members)
	}
	if !got.CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("created_at %v, want %v", got.CreatedAt, b.CreatedAt)
	}

	byLink, err := st.GetBoardByShortLink(ctx, b.ShortLink)
	if err != nil || byLink == nil || byLink.ID != b.ID {
		t.Fatalf("get by short link: %v %v", byLink, err)
	}
	exists, err := st.ShortLinkExists(ctx, b.ShortLink)
	if err != nil || !exists {
		t.Fatalf("short link should exist: %v", err)
	}
	missing, err := st.GetBoard(ctx, domain.NewID())
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing board: %v %v", missing, err)
	}
}

func TestSQLBoardUniqueness(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	first := testBoard("Sprint 1", "u1")
	if err := st.InsertBoard(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var dup *domain.DuplicateError
	err := st.InsertBoard(ctx, testBoard("Sprint 1", "u2"))
	if !errors.As(err, &dup) || dup.Entity != "board" || dup.Field != "name" {
		t.Fatalf("expected name duplicate, got %v", err)
	}
	sameLink := testBoard("Sprint 2", "u2")
	sameLink.ShortLink = first.ShortLink
	err = st.InsertBoard(ctx, sameLink)
	if !errors.As(err, &dup) || dup.Field != "short_link" {
		t.Fatalf("expected short_link duplicate, got %v", err)
	}
}

func TestSQLBoardsForUserPaging(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	names := []string{"a", "b", "c", "d", "e"}
	for i, n := range names {
		var b domain.Board
		if i%2 == 0 {
			b = testBoard(n, "u1")
		} else {
			b = testBoard(n, "u9", "u1")
		}
		b.CreatedAt = b.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := st.InsertBoard(ctx, b); err != nil {
			t.Fatalf("insert %s: %v", n, err)
		}
	}
	if err := st.InsertBoard(ctx, testBoard("other", "u7")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	total, err := st.CountBoardsForUser(ctx, "u1")
	if err != nil || total != 5 {
		t.Fatalf("count: %d %v", total, err)
	}
	page, err := st.ListBoardsForUser(ctx, "u1", domain.PageOptions{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Name != "c" || page[1].Name != "d" {
		t.Fatalf("unexpected page: %#v", page)
	}
	if len(page[1].Members) != 1 || page[1].Members[0] != "u1" {
		t.Fatalf("members not attached: %#v", page[1])
	}
	desc, err := st.ListBoardsForUser(ctx, "u1", domain.PageOptions{Page: 1, Limit: 1, Order: "DESC"})
	if err != nil || len(desc) != 1 || desc[0].Name != "e" {
		t.Fatalf("unexpected desc page: %#v %v", desc, err)
	}
}

func TestSQLBoardsPageFarPastEnd(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	if err := st.InsertBoard(ctx, testBoard("only", "u1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	agg := domain.NewAggregator(st, "https://kanban.test/b/")
	for _, p := range []int{math.MaxInt, math.MaxInt/domain.MaxPageLimit + 2} {
		page, err := agg.FetchBoardsPage(ctx, "u1", domain.PageOptions{Page: p, Limit: domain.MaxPageLimit})
		if err != nil {
			t.Fatalf("page %d: %v", p, err)
		}
		if len(page.Items) != 0 {
			t.Fatalf("page %d: expected no items, got %d", p, len(page.Items))
		}
		if page.Meta.Page != p || page.Meta.ItemCount != 1 || page.Meta.PageCount != 1 || !page.Meta.HasPreviousPage || page.Meta.HasNextPage {
			t.Fatalf("page %d: unexpected meta %#v", p, page.Meta)
		}
	}
}

func TestSQLListsAndUniqueness(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	b := testBoard("board", "u1")
	if err := st.InsertBoard(ctx, b); err != nil {
		t.Fatalf("insert board: %v", err)
	}
	if err := st.InsertList(ctx, testList(b.ID, "Done", 2)); err != nil {
		t.Fatalf("insert list: %v", err)
	}
	todo := testList(b.ID, "To Do", 0)
	if err := st.InsertList(ctx, todo); err != nil {
		t.Fatalf("insert list: %v", err)
	}

	var dup *domain.DuplicateError
	if err := st.InsertList(ctx, testList(b.ID, "To Do", 5)); !errors.As(err, &dup) || dup.Entity != "list" || dup.Field != "name" {
		t.Fatalf("expected list name duplicate, got %v", err)
	}
	if err := st.InsertList(ctx, testList(domain.NewID(), "Orphan", 0)); !errors.Is(err, domain.ErrMissingReference) {
		t.Fatalf("expected missing reference, got %v", err)
	}

	lists, err := st.ListsByBoard(ctx, b.ID)
	if err != nil || len(lists) != 2 || lists[0].ID != todo.ID {
		t.Fatalf("lists not ordered by pos: %#v %v", lists, err)
	}
	if lists[0].Limits != domain.DefaultListLimits() {
		t.Fatalf("limits lost: %#v", lists[0].Limits)
	}
}

func TestSQLTaskMutations(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	b := testBoard("board", "u1")
	if err := st.InsertBoard(ctx, b); err != nil {
		t.Fatalf("insert board: %v", err)
	}
	todo, done := testList(b.ID, "To Do", 0), testList(b.ID, "Done", 1)
	for _, l := range []domain.List{todo, done} {
		if err := st.InsertList(ctx, l); err != nil {
			t.Fatalf("insert list: %v", err)
		}
	}
	task := testTask(todo)
	due := time.Date(2030, 3, 4, 5, 6, 7, 0, time.UTC)
	task.DueReminder = &due
	task.Labels = []string{"bug"}
	task.UsersReminder = []string{"u1"}
	if err := st.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil || got == nil {
		t.Fatalf("get task: %v %v", got, err)
	}
	if got.DueReminder == nil || !got.DueReminder.Equal(due) || got.Start != nil {
		t.Fatalf("dates not kept: %#v", got)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "bug" || len(got.UsersReminder) != 1 {
		t.Fatalf("sets not kept: %#v", got)
	}

	if err := st.MoveTask(ctx, task.ID, done.ID, todo.ID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("stale move should match nothing, got %v", err)
	}
	if err := st.MoveTask(ctx, task.ID, todo.ID, done.ID); err != nil {
		t.Fatalf("move: %v", err)
	}

	first, err := st.ToggleTaskCompletion(ctx, task.ID)
	if err != nil || !first {
		t.Fatalf("first toggle: %v %v", first, err)
	}
	second, err := st.ToggleTaskCompletion(ctx, task.ID)
	if err != nil || second {
		t.Fatalf("second toggle: %v %v", second, err)
	}
	if _, err := st.ToggleTaskCompletion(ctx, domain.NewID()); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("toggle of missing task: %v", err)
	}

	tasks, err := st.TasksByBoard(ctx, b.ID)
	if err != nil || len(tasks) != 1 || tasks[0].ListID != done.ID || tasks[0].IsCompleted {
		t.Fatalf("unexpected tasks: %#v %v", tasks, err)
	}
}

func TestSQLDeleteTaskCascade(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	b := testBoard("board", "u1")
	if err := st.InsertBoard(ctx, b); err != nil {
		t.Fatalf("insert board: %v", err)
	}
	l := testList(b.ID, "To Do", 0)
	if err := st.InsertList(ctx, l); err != nil {
		t.Fatalf("insert list: %v", err)
	}
	task, lonely := testTask(l), testTask(l)
	for _, tk := range []domain.Task{task, lonely} {
		if err := st.InsertTask(ctx, tk); err != nil {
			t.Fatalf("insert task: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		ts := time.Now().UTC()
		sub := domain.SubTask{ID: domain.NewID(), Title: "step", TaskID: task.ID, CreatedAt: ts, UpdatedAt: ts}
		if err := st.InsertSubTask(ctx, sub); err != nil {
			t.Fatalf("insert subtask: %v", err)
		}
	}
	orphan := domain.SubTask{ID: domain.NewID(), Title: "x", TaskID: domain.NewID(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := st.InsertSubTask(ctx, orphan); !errors.Is(err, domain.ErrMissingReference) {
		t.Fatalf("expected missing reference, got %v", err)
	}

	removed, err := st.DeleteTaskCascade(ctx, task.ID)
	if err != nil || removed != 2 {
		t.Fatalf("delete: %d %v", removed, err)
	}
	subs, err := st.SubTasksByTask(ctx, task.ID)
	if err != nil || len(subs) != 0 {
		t.Fatalf("subtasks left: %#v %v", subs, err)
	}
	if got, _ := st.GetTask(ctx, task.ID); got != nil {
		t.Fatalf("task not deleted")
	}
	removed, err = st.DeleteTaskCascade(ctx, lonely.ID)
	if err != nil || removed != 0 {
		t.Fatalf("delete without subtasks: %d %v", removed, err)
	}
	if _, err := st.DeleteTaskCascade(ctx, task.ID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestSQLUsers(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	if err := st.UpsertUser(ctx, domain.User{ID: "u1", Role: "user", IsActive: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertUser(ctx, domain.User{ID: "u1", Role: "admin", IsActive: true}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	ok, err := st.UserExists(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("u1 should exist: %v", err)
	}
	ok, err = st.UserExists(ctx, "u2")
	if err != nil || ok {
		t.Fatalf("u2 should not exist: %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("file.db"); got != "file.db?_foreign_keys=on&_busy_timeout=5000" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := sqliteDSN("file.db?cache=shared"); got != "file.db?cache=shared&_foreign_keys=on&_busy_timeout=5000" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := sqliteDSN("file.db?_foreign_keys=off"); got != "file.db?_foreign_keys=off" {
		t.Fatalf("explicit setting must win, got %q", got)
	}
}
