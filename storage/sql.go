package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore persists the board hierarchy in postgres or sqlite.
type SQLStore struct {
	db *sqlx.DB
	sq squirrel.StatementBuilderType
}

// OpenSQL connects to the database. sqlite connections get foreign keys
// enabled and a single writer.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing handle. The placeholder style follows the driver name.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	if db.DriverName() == DriverPostgres {
		sq = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return &SQLStore{db: db, sq: sq}
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Migrate creates missing tables, indexes and constraints.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	log.WithField("driver", s.db.DriverName()).Info("sql schema applied")
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }

type boardRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	OwnerID     string    `db:"owner_id"`
	ShortLink   string    `db:"short_link"`
	IsPrivate   bool      `db:"is_private"`
	IsArchived  bool      `db:"is_archived"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

var boardColumns = []string{"id", "name", "description", "owner_id", "short_link", "is_private", "is_archived", "created_at", "updated_at"}

func (r boardRow) toDomain(members []string) domain.Board {
	if members == nil {
		members = []string{}
	}
	return domain.Board{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Members:     members,
		OwnerID:     r.OwnerID,
		ShortLink:   r.ShortLink,
		IsPrivate:   r.IsPrivate,
		IsArchived:  r.IsArchived,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (s *SQLStore) InsertBoard(ctx context.Context, b domain.Board) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q, args, err := s.sq.Insert("boards").Columns(boardColumns...).
		Values(b.ID, b.Name, b.Description, b.OwnerID, b.ShortLink, b.IsPrivate, b.IsArchived, b.CreatedAt, b.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return mapSQLError(err)
	}
	if len(b.Members) > 0 {
		ins := s.sq.Insert("board_members").Columns("board_id", "user_id", "position")
		for i, m := range b.Members {
			ins = ins.Values(b.ID, m, i)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return mapSQLError(err)
		}
	}
	return mapSQLError(tx.Commit())
}

func (s *SQLStore) getBoardWhere(ctx context.Context, pred squirrel.Eq) (*domain.Board, error) {
	q, args, err := s.sq.Select(boardColumns...).From("boards").Where(pred).ToSql()
	if err != nil {
		return nil, err
	}
	var rows []boardRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, mapSQLError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	members, err := s.membersOf(ctx, rows[0].ID)
	if err != nil {
		return nil, err
	}
	b := rows[0].toDomain(members[rows[0].ID])
	return &b, nil
}

func (s *SQLStore) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	return s.getBoardWhere(ctx, squirrel.Eq{"id": id})
}

func (s *SQLStore) GetBoardByShortLink(ctx context.Context, shortLink string) (*domain.Board, error) {
	return s.getBoardWhere(ctx, squirrel.Eq{"short_link": shortLink})
}

func (s *SQLStore) ShortLinkExists(ctx context.Context, shortLink string) (bool, error) {
	n, err := s.count(ctx, s.sq.Select("COUNT(*)").From("boards").Where(squirrel.Eq{"short_link": shortLink}))
	return n > 0, err
}

// membersOf returns member ids per board id in their stored order.
func (s *SQLStore) membersOf(ctx context.Context, boardIDs ...string) (map[string][]string, error) {
	out := make(map[string][]string, len(boardIDs))
	if len(boardIDs) == 0 {
		return out, nil
	}
	q, args, err := s.sq.Select("board_id", "user_id").From("board_members").
		Where(squirrel.Eq{"board_id": boardIDs}).
		OrderBy("board_id", "position").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		BoardID string `db:"board_id"`
		UserID  string `db:"user_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, mapSQLError(err)
	}
	for _, r := range rows {
		out[r.BoardID] = append(out[r.BoardID], r.UserID)
	}
	return out, nil
}

func userBoardsFilter(userID string) squirrel.Sqlizer {
	return squirrel.Or{
		squirrel.Eq{"b.owner_id": userID},
		squirrel.Expr("EXISTS (SELECT 1 FROM board_members m WHERE m.board_id = b.id AND m.user_id = ?)", userID),
	}
}

func (s *SQLStore) ListBoardsForUser(ctx context.Context, userID string, opts domain.PageOptions) ([]domain.Board, error) {
	opts = opts.Normalize()
	cols := make([]string, len(boardColumns))
	for i, c := range boardColumns {
		cols[i] = "b." + c
	}
	q, args, err := s.sq.Select(cols...).From("boards b").
		Where(userBoardsFilter(userID)).
		OrderBy("b.created_at "+opts.Order, "b.id "+opts.Order).
		Limit(uint64(opts.Limit)).
		Offset(uint64(opts.Skip())).
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []boardRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, mapSQLError(err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	members, err := s.membersOf(ctx, ids...)
	if err != nil {
		return nil, err
	}
	boards := make([]domain.Board, 0, len(rows))
	for _, r := range rows {
		boards = append(boards, r.toDomain(members[r.ID]))
	}
	return boards, nil
}

func (s *SQLStore) CountBoardsForUser(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, s.sq.Select("COUNT(*)").From("boards b").Where(userBoardsFilter(userID)))
}

func (s *SQLStore) count(ctx context.Context, b squirrel.SelectBuilder) (int, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, mapSQLError(err)
	}
	return n, nil
}

type listRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Pos       int       `db:"pos"`
	BoardID   string    `db:"board_id"`
	Closed    bool      `db:"closed"`
	Color     string    `db:"color"`
	Limits    string    `db:"limits"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

var listColumns = []string{"id", "name", "pos", "board_id", "closed", "color", "limits", "created_at", "updated_at"}

func (r listRow) toDomain() (domain.List, error) {
	l := domain.List{
		ID:        r.ID,
		Name:      r.Name,
		Pos:       r.Pos,
		BoardID:   r.BoardID,
		Closed:    r.Closed,
		Color:     r.Color,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := sonic.UnmarshalString(r.Limits, &l.Limits); err != nil {
		return domain.List{}, fmt.Errorf("decode limits of list %s: %w", r.ID, err)
	}
	return l, nil
}

func (s *SQLStore) InsertList(ctx context.Context, l domain.List) error {
	limits, err := sonic.MarshalString(l.Limits)
	if err != nil {
		return err
	}
	return s.exec(ctx, s.sq.Insert("lists").Columns(listColumns...).
		Values(l.ID, l.Name, l.Pos, l.BoardID, l.Closed, l.Color, limits, l.CreatedAt, l.UpdatedAt))
}

func (s *SQLStore) GetList(ctx context.Context, id string) (*domain.List, error) {
	lists, err := s.selectLists(ctx, squirrel.Eq{"id": id})
	if err != nil || len(lists) == 0 {
		return nil, err
	}
	return &lists[0], nil
}

func (s *SQLStore) ListsByBoard(ctx context.Context, boardID string) ([]domain.List, error) {
	return s.selectLists(ctx, squirrel.Eq{"board_id": boardID})
}

func (s *SQLStore) selectLists(ctx context.Context, pred squirrel.Eq) ([]domain.List, error) {
	q, args, err := s.sq.Select(listColumns...).From("lists").Where(pred).OrderBy("pos", "created_at", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []listRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, mapSQLError(err)
	}
	out := make([]domain.List, 0, len(rows))
	for _, r := range rows {
		l, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

type taskRow struct {
	ID            string     `db:"id"`
	Title         string     `db:"title"`
	Description   string     `db:"description"`
	ListID        string     `db:"list_id"`
	BoardID       string     `db:"board_id"`
	IsCompleted   bool       `db:"is_completed"`
	Start         *time.Time `db:"start_at"`
	Due           *time.Time `db:"due_at"`
	DueReminder   *time.Time `db:"due_reminder"`
	Labels        string     `db:"labels"`
	UsersReminder string     `db:"users_reminder"`
	ShortLink     string     `db:"short_link"`
	ShortURL      string     `db:"short_url"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

var taskColumns = []string{"id", "title", "description", "list_id", "board_id", "is_completed", "start_at", "due_at", "due_reminder", "labels", "users_reminder", "short_link", "short_url", "created_at", "updated_at"}

func (r taskRow) toDomain() (domain.Task, error) {
	t := domain.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		ListID:      r.ListID,
		BoardID:     r.BoardID,
		IsCompleted: r.IsCompleted,
		Start:       utcPtr(r.Start),
		Due:         utcPtr(r.Due),
		DueReminder: utcPtr(r.DueReminder),
		ShortLink:   r.ShortLink,
		ShortURL:    r.ShortURL,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	var err error
	if t.Labels, err = decodeIDs(r.Labels); err != nil {
		return domain.Task{}, fmt.Errorf("decode labels of task %s: %w", r.ID, err)
	}
	if t.UsersReminder, err = decodeIDs(r.UsersReminder); err != nil {
		return domain.Task{}, fmt.Errorf("decode reminder users of task %s: %w", r.ID, err)
	}
	return t, nil
}

func (s *SQLStore) InsertTask(ctx context.Context, t domain.Task) error {
	labels, err := encodeIDs(t.Labels)
	if err != nil {
		return err
	}
	users, err := encodeIDs(t.UsersReminder)
	if err != nil {
		return err
	}
	return s.exec(ctx, s.sq.Insert("tasks").Columns(taskColumns...).
		Values(t.ID, t.Title, t.Description, t.ListID, t.BoardID, t.IsCompleted, t.Start, t.Due, t.DueReminder,
			labels, users, t.ShortLink, t.ShortURL, t.CreatedAt, t.UpdatedAt))
}

func (s *SQLStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	tasks, err := s.selectTasks(ctx, squirrel.Eq{"id": id})
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return &tasks[0], nil
}

func (s *SQLStore) TasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	return s.selectTasks(ctx, squirrel.Eq{"board_id": boardID})
}

func (s *SQLStore) selectTasks(ctx context.Context, pred squirrel.Eq) ([]domain.Task, error) {
	q, args, err := s.sq.Select(taskColumns...).From("tasks").Where(pred).OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, mapSQLError(err)
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLStore) MoveTask(ctx context.Context, id, from, to string) error {
	q, args, err := s.sq.Update("tasks").
		Set("list_id", to).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "list_id": from}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (s *SQLStore) ToggleTaskCompletion(ctx context.Context, id string) (bool, error) {
	q, args, err := s.sq.Update("tasks").
		Set("is_completed", squirrel.Expr("NOT is_completed")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING is_completed").
		ToSql()
	if err != nil {
		return false, err
	}
	var done bool
	if err := s.db.GetContext(ctx, &done, q, args...); err != nil {
		return false, mapSQLError(err)
	}
	return done, nil
}

func (s *SQLStore) DeleteTaskCascade(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	q, args, err := s.sq.Delete("subtasks").Where(squirrel.Eq{"task_id": id}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, mapSQLError(err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	q, args, err = s.sq.Delete("tasks").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err = tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrRecordNotFound
	}
	if err := tx.Commit(); err != nil {
		return 0, mapSQLError(err)
	}
	return int(removed), nil
}

type subTaskRow struct {
	ID            string     `db:"id"`
	Title         string     `db:"title"`
	Description   string     `db:"description"`
	TaskID        string     `db:"task_id"`
	IsCompleted   bool       `db:"is_completed"`
	Start         *time.Time `db:"start_at"`
	Due           *time.Time `db:"due_at"`
	DueReminder   *time.Time `db:"due_reminder"`
	UsersReminder string     `db:"users_reminder"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

var subTaskColumns = []string{"id", "title", "description", "task_id", "is_completed", "start_at", "due_at", "due_reminder", "users_reminder", "created_at", "updated_at"}

func (s *SQLStore) InsertSubTask(ctx context.Context, st domain.SubTask) error {
	users, err := encodeIDs(st.UsersReminder)
	if err != nil {
		return err
	}
	return s.exec(ctx, s.sq.Insert("subtasks").Columns(subTaskColumns...).
		Values(st.ID, st.Title, st.Description, st.TaskID, st.IsCompleted, st.Start, st.Due, st.DueReminder,
			users, st.CreatedAt, st.UpdatedAt))
}

func (s *SQLStore) SubTasksByTask(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	q, args, err := s.sq.Select(subTaskColumns...).From("subtasks").
		Where(squirrel.Eq{"task_id": taskID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []subTaskRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, mapSQLError(err)
	}
	out := make([]domain.SubTask, 0, len(rows))
	for _, r := range rows {
		users, err := decodeIDs(r.UsersReminder)
		if err != nil {
			return nil, fmt.Errorf("decode reminder users of subtask %s: %w", r.ID, err)
		}
		out = append(out, domain.SubTask{
			ID:            r.ID,
			Title:         r.Title,
			Description:   r.Description,
			TaskID:        r.TaskID,
			IsCompleted:   r.IsCompleted,
			Start:         utcPtr(r.Start),
			Due:           utcPtr(r.Due),
			DueReminder:   utcPtr(r.DueReminder),
			UsersReminder: users,
			CreatedAt:     r.CreatedAt.UTC(),
			UpdatedAt:     r.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *SQLStore) UserExists(ctx context.Context, id string) (bool, error) {
	n, err := s.count(ctx, s.sq.Select("COUNT(*)").From("users").Where(squirrel.Eq{"id": id}))
	return n > 0, err
}

// UpsertUser registers or refreshes a user known to the identity provider.
func (s *SQLStore) UpsertUser(ctx context.Context, u domain.User) error {
	return s.exec(ctx, s.sq.Insert("users").Columns("id", "role", "is_active", "is_banned").
		Values(u.ID, u.Role, u.IsActive, u.IsBanned).
		Suffix("ON CONFLICT (id) DO UPDATE SET role = excluded.role, is_active = excluded.is_active, is_banned = excluded.is_banned"))
}

func (s *SQLStore) exec(ctx context.Context, b squirrel.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return mapSQLError(err)
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	return sonic.MarshalString(ids)
}

func decodeIDs(raw string) ([]string, error) {
	ids := []string{}
	if raw == "" {
		return ids, nil
	}
	if err := sonic.UnmarshalString(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
