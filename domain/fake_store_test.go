package domain

import (
	"context"
	"sort"
)

type fakeStore struct {
	boards   map[string]Board
	lists    map[string]List
	tasks    map[string]Task
	subtasks map[string]SubTask
	users    map[string]bool

	// takenLinks are reported as existing by ShortLinkExists.
	takenLinks map[string]bool
	// raceLinks makes InsertBoard fail once with a short_link duplicate.
	raceLinks int

	insertErr error
	getErr    error
	toggles   int
	moves     int
	// moveHook runs before MoveTask compares the current list.
	moveHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards:     map[string]Board{},
		lists:      map[string]List{},
		tasks:      map[string]Task{},
		subtasks:   map[string]SubTask{},
		users:      map[string]bool{},
		takenLinks: map[string]bool{},
	}
}

func (f *fakeStore) InsertBoard(ctx context.Context, b Board) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.raceLinks > 0 {
		f.raceLinks--
		return &DuplicateError{Entity: "board", Field: "short_link"}
	}
	for _, existing := range f.boards {
		if existing.Name == b.Name {
			return &DuplicateError{Entity: "board", Field: "name"}
		}
		if existing.ShortLink == b.ShortLink {
			return &DuplicateError{Entity: "board", Field: "short_link"}
		}
	}
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (*Board, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.boards[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) GetBoardByShortLink(ctx context.Context, link string) (*Board, error) {
	for _, b := range f.boards {
		if b.ShortLink == link {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ShortLinkExists(ctx context.Context, link string) (bool, error) {
	if f.takenLinks[link] {
		return true, nil
	}
	b, _ := f.GetBoardByShortLink(ctx, link)
	return b != nil, nil
}

func (f *fakeStore) userBoards(userID string) []Board {
	var out []Board
	for _, b := range f.boards {
		if Authorize(b, userID) == nil {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListBoardsForUser(ctx context.Context, userID string, opts PageOptions) ([]Board, error) {
	all := f.userBoards(userID)
	if opts.Order == OrderDesc {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	start := opts.Skip()
	if start >= len(all) {
		return nil, nil
	}
	end := start + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeStore) CountBoardsForUser(ctx context.Context, userID string) (int, error) {
	return len(f.userBoards(userID)), nil
}

func (f *fakeStore) InsertList(ctx context.Context, l List) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.boards[l.BoardID]; !ok {
		return ErrMissingReference
	}
	for _, existing := range f.lists {
		if existing.BoardID == l.BoardID && existing.Name == l.Name {
			return &DuplicateError{Entity: "list", Field: "name"}
		}
	}
	f.lists[l.ID] = l
	return nil
}

func (f *fakeStore) GetList(ctx context.Context, id string) (*List, error) {
	l, ok := f.lists[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (f *fakeStore) ListsByBoard(ctx context.Context, boardID string) ([]List, error) {
	var out []List
	for _, l := range f.lists {
		if l.BoardID == boardID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t Task) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.lists[t.ListID]; !ok {
		return ErrMissingReference
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) TasksByBoard(ctx context.Context, boardID string) ([]Task, error) {
	var out []Task
	for _, t := range f.tasks {
		if t.BoardID == boardID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) MoveTask(ctx context.Context, id, from, to string) error {
	f.moves++
	if f.moveHook != nil {
		hook := f.moveHook
		f.moveHook = nil
		hook()
	}
	t, ok := f.tasks[id]
	if !ok || t.ListID != from {
		return ErrRecordNotFound
	}
	t.ListID = to
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) ToggleTaskCompletion(ctx context.Context, id string) (bool, error) {
	t, ok := f.tasks[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	f.toggles++
	t.IsCompleted = !t.IsCompleted
	f.tasks[id] = t
	return t.IsCompleted, nil
}

func (f *fakeStore) DeleteTaskCascade(ctx context.Context, id string) (int, error) {
	if _, ok := f.tasks[id]; !ok {
		return 0, ErrRecordNotFound
	}
	removed := 0
	for sid, st := range f.subtasks {
		if st.TaskID == id {
			delete(f.subtasks, sid)
			removed++
		}
	}
	delete(f.tasks, id)
	return removed, nil
}

func (f *fakeStore) InsertSubTask(ctx context.Context, st SubTask) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.tasks[st.TaskID]; !ok {
		return ErrMissingReference
	}
	f.subtasks[st.ID] = st
	return nil
}

func (f *fakeStore) SubTasksByTask(ctx context.Context, taskID string) ([]SubTask, error) {
	var out []SubTask
	for _, st := range f.subtasks {
		if st.TaskID == taskID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) UserExists(ctx context.Context, id string) (bool, error) {
	return f.users[id], nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

type recordingScheduler struct {
	reminders []Reminder
	err       error
}

func (r *recordingScheduler) Schedule(ctx context.Context, rem Reminder) error {
	r.reminders = append(r.reminders, rem)
	return r.err
}

// seedBoard stores a board with one list and returns both.
func seedBoard(f *fakeStore, owner string, members ...string) (Board, List) {
	b := Board{ID: NewID(), Name: "board-" + owner + "-" + NewID(), OwnerID: owner, Members: members, ShortLink: "lnk" + NewID()[20:]}
	f.boards[b.ID] = b
	l := List{ID: NewID(), Name: "To Do", BoardID: b.ID, Limits: DefaultListLimits()}
	f.lists[l.ID] = l
	return b, l
}
