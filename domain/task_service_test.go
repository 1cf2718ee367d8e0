package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func seedTask(fs *fakeStore, b Board, l List) Task {
	t := Task{ID: NewID(), Title: "write docs", ListID: l.ID, BoardID: b.ID}
	fs.tasks[t.ID] = t
	return t
}

func TestTaskCreateTakesBoardFromList(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	fs.users["u1"] = true
	sched := &recordingScheduler{}
	svc := NewTaskService(fs, sched)

	due := time.Date(2030, 1, 2, 15, 0, 0, 0, time.UTC)
	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:         "Ship",
		ListID:        l.ID,
		DueReminder:   &due,
		UsersReminder: []string{"u1", "u1"},
		Labels:        []string{"urgent"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.BoardID != b.ID || task.ListID != l.ID || task.IsCompleted {
		t.Fatalf("unexpected task: %#v", task)
	}
	if len(task.UsersReminder) != 1 {
		t.Fatalf("reminder users not deduplicated: %v", task.UsersReminder)
	}
	if len(sched.reminders) != 1 || sched.reminders[0].EntityID != task.ID || !sched.reminders[0].At.Equal(due) {
		t.Fatalf("unexpected reminders: %#v", sched.reminders)
	}
}

func TestTaskCreateFailures(t *testing.T) {
	fs := newFakeStore()
	_, l := seedBoard(fs, "u1")
	svc := NewTaskService(fs, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateTaskInput{ListID: l.ID}); KindOf(err) != KindInvalid {
		t.Fatalf("missing title: %v", err)
	}
	if _, err := svc.Create(ctx, CreateTaskInput{Title: "x"}); KindOf(err) != KindInvalid {
		t.Fatalf("missing list: %v", err)
	}
	if _, err := svc.Create(ctx, CreateTaskInput{Title: "x", ListID: NewID()}); KindOf(err) != KindNotFound {
		t.Fatalf("unknown list: %v", err)
	}
	if _, err := svc.Create(ctx, CreateTaskInput{Title: "x", ListID: l.ID, UsersReminder: []string{"ghost"}}); KindOf(err) != KindNotFound {
		t.Fatalf("unknown reminder user: %v", err)
	}
	if _, err := svc.Create(ctx, CreateTaskInput{Title: "x", ListID: l.ID, ShortLink: strings.Repeat("a", 101)}); KindOf(err) != KindInvalid {
		t.Fatalf("long short link: %v", err)
	}
	if len(fs.tasks) != 0 {
		t.Fatalf("no task should be stored, got %d", len(fs.tasks))
	}
}

func TestTaskCreateReminderFailureIsNotFatal(t *testing.T) {
	fs := newFakeStore()
	_, l := seedBoard(fs, "u1")
	fs.users["u1"] = true
	svc := NewTaskService(fs, &recordingScheduler{err: errors.New("queue down")})
	due := time.Now().Add(time.Hour)
	if _, err := svc.Create(context.Background(), CreateTaskInput{Title: "x", ListID: l.ID, DueReminder: &due, UsersReminder: []string{"u1"}}); err != nil {
		t.Fatalf("create should succeed: %v", err)
	}
}

func TestChangeListToCurrentListConflicts(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	task := seedTask(fs, b, l)
	svc := NewTaskService(fs, nil)

	err := svc.ChangeList(context.Background(), task.ID, l.ID)
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if fs.moves != 0 || fs.tasks[task.ID].ListID != l.ID {
		t.Fatalf("task must be unchanged")
	}
}

func TestChangeListMovesWithinBoard(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	done := List{ID: NewID(), Name: "Done", BoardID: b.ID}
	fs.lists[done.ID] = done
	task := seedTask(fs, b, l)
	svc := NewTaskService(fs, nil)

	if err := svc.ChangeList(context.Background(), task.ID, done.ID); err != nil {
		t.Fatalf("change list: %v", err)
	}
	if fs.tasks[task.ID].ListID != done.ID {
		t.Fatalf("task not moved")
	}
}

func TestChangeListFailures(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	_, foreign := seedBoard(fs, "u2")
	task := seedTask(fs, b, l)
	svc := NewTaskService(fs, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		task, list string
		want       Kind
	}{
		{"missing task id", "", l.ID, KindInvalid},
		{"missing list id", task.ID, "", KindInvalid},
		{"unknown task", NewID(), l.ID, KindNotFound},
		{"unknown list", task.ID, NewID(), KindNotFound},
		{"other board", task.ID, foreign.ID, KindInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.ChangeList(ctx, tc.task, tc.list); KindOf(err) != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestChangeListRetriesAfterConcurrentMove(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	doing := List{ID: NewID(), Name: "Doing", BoardID: b.ID}
	done := List{ID: NewID(), Name: "Done", BoardID: b.ID}
	fs.lists[doing.ID] = doing
	fs.lists[done.ID] = done
	task := seedTask(fs, b, l)
	fs.moveHook = func() {
		moved := fs.tasks[task.ID]
		moved.ListID = doing.ID
		fs.tasks[task.ID] = moved
	}
	svc := NewTaskService(fs, nil)

	if err := svc.ChangeList(context.Background(), task.ID, done.ID); err != nil {
		t.Fatalf("change list: %v", err)
	}
	if fs.moves != 2 || fs.tasks[task.ID].ListID != done.ID {
		t.Fatalf("expected retry to land in done, moves=%d list=%s", fs.moves, fs.tasks[task.ID].ListID)
	}
}

func TestChangeListConcurrentMoveToSameTargetConflicts(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	done := List{ID: NewID(), Name: "Done", BoardID: b.ID}
	fs.lists[done.ID] = done
	task := seedTask(fs, b, l)
	fs.moveHook = func() {
		moved := fs.tasks[task.ID]
		moved.ListID = done.ID
		fs.tasks[task.ID] = moved
	}
	svc := NewTaskService(fs, nil)
	if err := svc.ChangeList(context.Background(), task.ID, done.ID); KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestToggleStatusForbiddenLeavesTaskUnchanged(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1", "u2")
	task := seedTask(fs, b, l)
	svc := NewTaskService(fs, nil)

	_, err := svc.ToggleStatus(context.Background(), task.ID, "u3")
	if KindOf(err) != KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if fs.toggles != 0 || fs.tasks[task.ID].IsCompleted {
		t.Fatalf("task must be unchanged")
	}
}

func TestToggleStatusTwiceRestores(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1", "u2")
	task := seedTask(fs, b, l)
	svc := NewTaskService(fs, nil)
	ctx := context.Background()

	first, err := svc.ToggleStatus(ctx, task.ID, "u2")
	if err != nil || !first {
		t.Fatalf("first toggle: %v %v", first, err)
	}
	second, err := svc.ToggleStatus(ctx, task.ID, "u1")
	if err != nil || second {
		t.Fatalf("second toggle: %v %v", second, err)
	}
	if fs.tasks[task.ID].IsCompleted != task.IsCompleted {
		t.Fatalf("two toggles must restore the original value")
	}
}

func TestToggleStatusMissingRecords(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	orphan := Task{ID: NewID(), ListID: l.ID, BoardID: NewID()}
	fs.tasks[orphan.ID] = orphan
	svc := NewTaskService(fs, nil)
	ctx := context.Background()

	if _, err := svc.ToggleStatus(ctx, NewID(), b.OwnerID); KindOf(err) != KindNotFound {
		t.Fatalf("unknown task: %v", err)
	}
	if _, err := svc.ToggleStatus(ctx, orphan.ID, b.OwnerID); KindOf(err) != KindNotFound {
		t.Fatalf("unknown board: %v", err)
	}
	if _, err := svc.ToggleStatus(ctx, "", b.OwnerID); KindOf(err) != KindInvalid {
		t.Fatalf("missing id: %v", err)
	}
}

func TestDeleteCascadesSubtasks(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	task := seedTask(fs, b, l)
	lonely := seedTask(fs, b, l)
	for i := 0; i < 2; i++ {
		st := SubTask{ID: NewID(), TaskID: task.ID, Title: "step"}
		fs.subtasks[st.ID] = st
	}
	svc := NewTaskService(fs, nil)
	ctx := context.Background()

	removed, err := svc.Delete(ctx, task.ID, "u1")
	if err != nil || removed != 2 {
		t.Fatalf("delete: removed=%d err=%v", removed, err)
	}
	if len(fs.subtasks) != 0 {
		t.Fatalf("subtasks left behind: %d", len(fs.subtasks))
	}
	if _, ok := fs.tasks[task.ID]; ok {
		t.Fatalf("task not deleted")
	}

	removed, err = svc.Delete(ctx, lonely.ID, "u1")
	if err != nil || removed != 0 {
		t.Fatalf("delete without subtasks: removed=%d err=%v", removed, err)
	}
}

func TestDeleteIsGated(t *testing.T) {
	fs := newFakeStore()
	b, l := seedBoard(fs, "u1")
	task := seedTask(fs, b, l)
	svc := NewTaskService(fs, nil)
	if _, err := svc.Delete(context.Background(), task.ID, "u9"); KindOf(err) != KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, ok := fs.tasks[task.ID]; !ok {
		t.Fatalf("task must survive a denied delete")
	}
}
