package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const (
	boardPartition     = "board"
	namePartition      = "name"
	shortLinkPartition = "shortlink"
	userPrefix         = "user_"
	listNamePrefix     = "listname_"

	// a table transaction carries at most 100 operations
	batchSize = 100
	// etagRetries bounds optimistic update attempts on a contended task
	etagRetries = 5
)

// TableNames lists the tables a TableStore uses.
func TableNames(prefix string) []string {
	return []string{prefix + "boards", prefix + "boardindex", prefix + "lists", prefix + "tasks", prefix + "subtasks", prefix + "users"}
}

// tableClient is the part of *aztables.Client the store uses.
type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// TableStore persists the board hierarchy in Azure Table Storage. Uniqueness
// is enforced with insert-if-absent rows in the index table.
type TableStore struct {
	svc      *aztables.ServiceClient
	prefix   string
	boards   tableClient
	index    tableClient
	lists    tableClient
	tasks    tableClient
	subtasks tableClient
	users    tableClient
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, prefix string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	names := TableNames(prefix)
	return &TableStore{
		svc:      svc,
		prefix:   prefix,
		boards:   svc.NewClient(names[0]),
		index:    svc.NewClient(names[1]),
		lists:    svc.NewClient(names[2]),
		tasks:    svc.NewClient(names[3]),
		subtasks: svc.NewClient(names[4]),
		users:    svc.NewClient(names[5]),
	}, nil
}

// Migrate creates the tables that do not exist yet.
func (s *TableStore) Migrate(ctx context.Context) error {
	for _, name := range TableNames(s.prefix) {
		if _, err := s.svc.CreateTable(ctx, name, nil); err != nil {
			if isStatus(err, 409) {
				continue
			}
			return fmt.Errorf("create table %s: %w", name, err)
		}
		log.WithField("table", name).Info("table created")
	}
	return nil
}

func (s *TableStore) Ping(ctx context.Context) error {
	_, err := s.svc.GetProperties(ctx, nil)
	return err
}

func (s *TableStore) Close() error { return nil }

type tableKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type indexEntity struct {
	tableKeys
	Target string `json:"Target"`
}

type boardEntity struct {
	tableKeys
	Name        string    `json:"Name"`
	Description string    `json:"Description"`
	OwnerID     string    `json:"OwnerID"`
	ShortLink   string    `json:"ShortLink"`
	Members     string    `json:"Members"`
	IsPrivate   bool      `json:"IsPrivate"`
	IsArchived  bool      `json:"IsArchived"`
	CreatedAt   time.Time `json:"CreatedAt"`
	UpdatedAt   time.Time `json:"UpdatedAt"`
}

type listEntity struct {
	tableKeys
	Name      string    `json:"Name"`
	Pos       int       `json:"Pos"`
	Closed    bool      `json:"Closed"`
	Color     string    `json:"Color"`
	Limits    string    `json:"Limits"`
	CreatedAt time.Time `json:"CreatedAt"`
	UpdatedAt time.Time `json:"UpdatedAt"`
}

type taskEntity struct {
	tableKeys
	Title         string     `json:"Title"`
	Description   string     `json:"Description"`
	ListID        string     `json:"ListID"`
	IsCompleted   bool       `json:"IsCompleted"`
	Start         *time.Time `json:"Start,omitempty"`
	Due           *time.Time `json:"Due,omitempty"`
	DueReminder   *time.Time `json:"DueReminder,omitempty"`
	Labels        string     `json:"Labels"`
	UsersReminder string     `json:"UsersReminder"`
	ShortLink     string     `json:"ShortLink"`
	ShortURL      string     `json:"ShortURL"`
	CreatedAt     time.Time  `json:"CreatedAt"`
	UpdatedAt     time.Time  `json:"UpdatedAt"`
}

// taskPatch is merged into an existing task row.
type taskPatch struct {
	tableKeys
	ListID      *string   `json:"ListID,omitempty"`
	IsCompleted *bool     `json:"IsCompleted,omitempty"`
	UpdatedAt   time.Time `json:"UpdatedAt"`
}

type subTaskEntity struct {
	tableKeys
	Title         string     `json:"Title"`
	Description   string     `json:"Description"`
	IsCompleted   bool       `json:"IsCompleted"`
	Start         *time.Time `json:"Start,omitempty"`
	Due           *time.Time `json:"Due,omitempty"`
	DueReminder   *time.Time `json:"DueReminder,omitempty"`
	UsersReminder string     `json:"UsersReminder"`
	CreatedAt     time.Time  `json:"CreatedAt"`
	UpdatedAt     time.Time  `json:"UpdatedAt"`
}

type userEntity struct {
	tableKeys
	Role     string `json:"Role"`
	IsActive bool   `json:"IsActive"`
	IsBanned bool   `json:"IsBanned"`
}

// encodeKey makes arbitrary text safe for PartitionKey and RowKey.
func encodeKey(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func addEntity(ctx context.Context, c tableClient, v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.AddEntity(ctx, payload, nil)
	return err
}

// getEntity decodes the row into v. It reports false when the row is missing.
func getEntity(ctx context.Context, c tableClient, pk, rk string, v any) (azcore.ETag, bool, error) {
	resp, err := c.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isStatus(err, 404) {
			return "", false, nil
		}
		return "", false, err
	}
	if err := sonic.Unmarshal(resp.Value, v); err != nil {
		return "", false, err
	}
	return resp.ETag, true, nil
}

func deleteEntity(ctx context.Context, c tableClient, pk, rk string) error {
	_, err := c.DeleteEntity(ctx, pk, rk, nil)
	if isStatus(err, 404) {
		return nil
	}
	return err
}

func listEntities(ctx context.Context, c tableClient, filter, sel string, fn func([]byte) error) error {
	opts := &aztables.ListEntitiesOptions{Filter: &filter}
	if sel != "" {
		opts.Select = &sel
	}
	pager := c.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *TableStore) compensate(ctx context.Context, c tableClient, pk, rk string) {
	if err := deleteEntity(context.WithoutCancel(ctx), c, pk, rk); err != nil {
		log.WithError(err).WithFields(log.Fields{"pk": pk, "rk": rk}).Error("failed to roll back row")
	}
}

// InsertBoard writes the name and short link index rows, the board row and one
// membership row per user. A failure removes every row already written.
func (s *TableStore) InsertBoard(ctx context.Context, b domain.Board) error {
	var written []func()
	rollback := func() {
		for i := len(written) - 1; i >= 0; i-- {
			written[i]()
		}
	}
	undo := func(c tableClient, keys tableKeys) {
		written = append(written, func() { s.compensate(ctx, c, keys.PartitionKey, keys.RowKey) })
	}

	nameRow := indexEntity{tableKeys{namePartition, encodeKey(b.Name)}, b.ID}
	if err := addEntity(ctx, s.index, nameRow); err != nil {
		if isStatus(err, 409) {
			return &domain.DuplicateError{Entity: "board", Field: "name"}
		}
		return err
	}
	undo(s.index, nameRow.tableKeys)

	linkRow := indexEntity{tableKeys{shortLinkPartition, encodeKey(b.ShortLink)}, b.ID}
	if err := addEntity(ctx, s.index, linkRow); err != nil {
		rollback()
		if isStatus(err, 409) {
			return &domain.DuplicateError{Entity: "board", Field: "short_link"}
		}
		return err
	}
	undo(s.index, linkRow.tableKeys)

	ent, err := boardToEntity(b)
	if err == nil {
		err = addEntity(ctx, s.boards, ent)
	}
	if err != nil {
		rollback()
		return err
	}
	undo(s.boards, ent.tableKeys)

	for _, uid := range append([]string{b.OwnerID}, b.Members...) {
		row := indexEntity{tableKeys{userPrefix + encodeKey(uid), b.ID}, b.ID}
		payload, err := sonic.Marshal(row)
		if err == nil {
			_, err = s.index.UpsertEntity(ctx, payload, nil)
		}
		if err != nil {
			rollback()
			return fmt.Errorf("index member %s of board %s: %w", uid, b.ID, err)
		}
		undo(s.index, row.tableKeys)
	}
	return nil
}

func boardToEntity(b domain.Board) (boardEntity, error) {
	members, err := encodeIDs(b.Members)
	if err != nil {
		return boardEntity{}, err
	}
	return boardEntity{
		tableKeys:   tableKeys{boardPartition, b.ID},
		Name:        b.Name,
		Description: b.Description,
		OwnerID:     b.OwnerID,
		ShortLink:   b.ShortLink,
		Members:     members,
		IsPrivate:   b.IsPrivate,
		IsArchived:  b.IsArchived,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}, nil
}

func (e boardEntity) toDomain() (domain.Board, error) {
	members, err := decodeIDs(e.Members)
	if err != nil {
		return domain.Board{}, fmt.Errorf("decode members of board %s: %w", e.RowKey, err)
	}
	return domain.Board{
		ID:          e.RowKey,
		Name:        e.Name,
		Description: e.Description,
		Members:     members,
		OwnerID:     e.OwnerID,
		ShortLink:   e.ShortLink,
		IsPrivate:   e.IsPrivate,
		IsArchived:  e.IsArchived,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}, nil
}

func (s *TableStore) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	var ent boardEntity
	_, ok, err := getEntity(ctx, s.boards, boardPartition, id, &ent)
	if err != nil || !ok {
		return nil, err
	}
	b, err := ent.toDomain()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *TableStore) GetBoardByShortLink(ctx context.Context, shortLink string) (*domain.Board, error) {
	var row indexEntity
	_, ok, err := getEntity(ctx, s.index, shortLinkPartition, encodeKey(shortLink), &row)
	if err != nil || !ok {
		return nil, err
	}
	return s.GetBoard(ctx, row.Target)
}

func (s *TableStore) ShortLinkExists(ctx context.Context, shortLink string) (bool, error) {
	var row indexEntity
	_, ok, err := getEntity(ctx, s.index, shortLinkPartition, encodeKey(shortLink), &row)
	return ok, err
}

// userBoardIDs returns the ids of boards the user owns or belongs to.
// Board ids sort by creation time.
func (s *TableStore) userBoardIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	filter := "PartitionKey eq " + quote(userPrefix+encodeKey(userID))
	err := listEntities(ctx, s.index, filter, "RowKey", func(raw []byte) error {
		var k tableKeys
		if err := sonic.Unmarshal(raw, &k); err != nil {
			return err
		}
		ids = append(ids, k.RowKey)
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (s *TableStore) ListBoardsForUser(ctx context.Context, userID string, opts domain.PageOptions) ([]domain.Board, error) {
	opts = opts.Normalize()
	ids, err := s.userBoardIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if opts.Order == domain.OrderDesc {
		sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	}
	window := pageWindow(ids, opts)
	boards := make([]domain.Board, 0, len(window))
	for _, id := range window {
		b, err := s.GetBoard(ctx, id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			boards = append(boards, *b)
		}
	}
	return boards, nil
}

func pageWindow(ids []string, opts domain.PageOptions) []string {
	start := opts.Skip()
	if start < 0 || start >= len(ids) {
		return nil
	}
	end := start + opts.Limit
	if end > len(ids) || end < start {
		end = len(ids)
	}
	return ids[start:end]
}

func (s *TableStore) CountBoardsForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.userBoardIDs(ctx, userID)
	return len(ids), err
}

func (s *TableStore) InsertList(ctx context.Context, l domain.List) error {
	nameRow := indexEntity{tableKeys{listNamePrefix + l.BoardID, encodeKey(l.Name)}, l.ID}
	if err := addEntity(ctx, s.index, nameRow); err != nil {
		if isStatus(err, 409) {
			return &domain.DuplicateError{Entity: "list", Field: "name"}
		}
		return err
	}
	board, err := s.GetBoard(ctx, l.BoardID)
	if err == nil && board == nil {
		err = domain.ErrMissingReference
	}
	if err == nil {
		var limits string
		limits, err = sonic.MarshalString(l.Limits)
		if err == nil {
			err = addEntity(ctx, s.lists, listEntity{
				tableKeys: tableKeys{l.BoardID, l.ID},
				Name:      l.Name,
				Pos:       l.Pos,
				Closed:    l.Closed,
				Color:     l.Color,
				Limits:    limits,
				CreatedAt: l.CreatedAt,
				UpdatedAt: l.UpdatedAt,
			})
		}
	}
	if err != nil {
		s.compensate(ctx, s.index, nameRow.PartitionKey, nameRow.RowKey)
		return err
	}
	return nil
}

func (e listEntity) toDomain() (domain.List, error) {
	l := domain.List{
		ID:        e.RowKey,
		Name:      e.Name,
		Pos:       e.Pos,
		BoardID:   e.PartitionKey,
		Closed:    e.Closed,
		Color:     e.Color,
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
	if err := sonic.UnmarshalString(e.Limits, &l.Limits); err != nil {
		return domain.List{}, fmt.Errorf("decode limits of list %s: %w", e.RowKey, err)
	}
	return l, nil
}

func (s *TableStore) queryLists(ctx context.Context, filter string) ([]domain.List, error) {
	var out []domain.List
	err := listEntities(ctx, s.lists, filter, "", func(raw []byte) error {
		var ent listEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		l, err := ent.toDomain()
		if err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pos != out[j].Pos {
			return out[i].Pos < out[j].Pos
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *TableStore) GetList(ctx context.Context, id string) (*domain.List, error) {
	lists, err := s.queryLists(ctx, "RowKey eq "+quote(id))
	if err != nil || len(lists) == 0 {
		return nil, err
	}
	return &lists[0], nil
}

func (s *TableStore) ListsByBoard(ctx context.Context, boardID string) ([]domain.List, error) {
	return s.queryLists(ctx, "PartitionKey eq "+quote(boardID))
}

func taskToEntity(t domain.Task) (taskEntity, error) {
	labels, err := encodeIDs(t.Labels)
	if err != nil {
		return taskEntity{}, err
	}
	users, err := encodeIDs(t.UsersReminder)
	if err != nil {
		return taskEntity{}, err
	}
	return taskEntity{
		tableKeys:     tableKeys{t.BoardID, t.ID},
		Title:         t.Title,
		Description:   t.Description,
		ListID:        t.ListID,
		IsCompleted:   t.IsCompleted,
		Start:         t.Start,
		Due:           t.Due,
		DueReminder:   t.DueReminder,
		Labels:        labels,
		UsersReminder: users,
		ShortLink:     t.ShortLink,
		ShortURL:      t.ShortURL,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}, nil
}

func (e taskEntity) toDomain() (domain.Task, error) {
	t := domain.Task{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		ListID:      e.ListID,
		BoardID:     e.PartitionKey,
		IsCompleted: e.IsCompleted,
		Start:       utcPtr(e.Start),
		Due:         utcPtr(e.Due),
		DueReminder: utcPtr(e.DueReminder),
		ShortLink:   e.ShortLink,
		ShortURL:    e.ShortURL,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
	var err error
	if t.Labels, err = decodeIDs(e.Labels); err != nil {
		return domain.Task{}, fmt.Errorf("decode labels of task %s: %w", e.RowKey, err)
	}
	if t.UsersReminder, err = decodeIDs(e.UsersReminder); err != nil {
		return domain.Task{}, fmt.Errorf("decode reminder users of task %s: %w", e.RowKey, err)
	}
	return t, nil
}

func (s *TableStore) InsertTask(ctx context.Context, t domain.Task) error {
	var list listEntity
	_, ok, err := getEntity(ctx, s.lists, t.BoardID, t.ListID, &list)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrMissingReference
	}
	ent, err := taskToEntity(t)
	if err != nil {
		return err
	}
	return addEntity(ctx, s.tasks, ent)
}

func (s *TableStore) queryTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	var out []domain.Task
	err := listEntities(ctx, s.tasks, filter, "", func(raw []byte) error {
		var ent taskEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		t, err := ent.toDomain()
		if err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (s *TableStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	tasks, err := s.queryTasks(ctx, "RowKey eq "+quote(id))
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return &tasks[0], nil
}

func (s *TableStore) TasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	return s.queryTasks(ctx, "PartitionKey eq "+quote(boardID))
}

// patchTask reads the task row, lets mutate decide the patch and merges it
// guarded by the row's ETag. A mutate returning nil aborts with ErrRecordNotFound.
func (s *TableStore) patchTask(ctx context.Context, id string, mutate func(taskEntity) *taskPatch) (*taskPatch, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrRecordNotFound
	}
	for attempt := 0; attempt < etagRetries; attempt++ {
		var ent taskEntity
		etag, ok, err := getEntity(ctx, s.tasks, t.BoardID, id, &ent)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrRecordNotFound
		}
		patch := mutate(ent)
		if patch == nil {
			return nil, domain.ErrRecordNotFound
		}
		patch.tableKeys = ent.tableKeys
		patch.UpdatedAt = time.Now().UTC()
		payload, err := sonic.Marshal(patch)
		if err != nil {
			return nil, err
		}
		_, err = s.tasks.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge})
		switch {
		case err == nil:
			return patch, nil
		case isStatus(err, 412):
			log.WithFields(log.Fields{"task": id, "attempt": attempt + 1}).Warn("task changed concurrently, retrying")
			continue
		case isStatus(err, 404):
			return nil, domain.ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return nil, domain.ErrConcurrencyConflict
}

func (s *TableStore) MoveTask(ctx context.Context, id, from, to string) error {
	_, err := s.patchTask(ctx, id, func(cur taskEntity) *taskPatch {
		if cur.ListID != from {
			return nil
		}
		return &taskPatch{ListID: &to}
	})
	return err
}

func (s *TableStore) ToggleTaskCompletion(ctx context.Context, id string) (bool, error) {
	patch, err := s.patchTask(ctx, id, func(cur taskEntity) *taskPatch {
		done := !cur.IsCompleted
		return &taskPatch{IsCompleted: &done}
	})
	if err != nil {
		return false, err
	}
	return *patch.IsCompleted, nil
}

// DeleteTaskCascade removes the subtask partition in batches, then the task row.
func (s *TableStore) DeleteTaskCascade(ctx context.Context, id string) (int, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, domain.ErrRecordNotFound
	}
	var keys []tableKeys
	err = listEntities(ctx, s.subtasks, "PartitionKey eq "+quote(id), "PartitionKey,RowKey", func(raw []byte) error {
		var k tableKeys
		if err := sonic.Unmarshal(raw, &k); err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return 0, err
	}
	actions, err := deleteActions(keys)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, batch := range actions {
		if _, err := s.subtasks.SubmitTransaction(ctx, batch, nil); err != nil {
			return removed, fmt.Errorf("delete subtasks of task %s: %w", id, err)
		}
		removed += len(batch)
	}
	if _, err := s.tasks.DeleteEntity(ctx, t.BoardID, id, nil); err != nil {
		if isStatus(err, 404) {
			return removed, domain.ErrRecordNotFound
		}
		return removed, err
	}
	return removed, nil
}

// deleteActions groups delete operations into transactions of at most batchSize.
func deleteActions(keys []tableKeys) ([][]aztables.TransactionAction, error) {
	var out [][]aztables.TransactionAction
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := make([]aztables.TransactionAction, 0, end-start)
		for _, k := range keys[start:end] {
			payload, err := sonic.Marshal(k)
			if err != nil {
				return nil, err
			}
			batch = append(batch, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: payload})
		}
		out = append(out, batch)
	}
	return out, nil
}

func (s *TableStore) InsertSubTask(ctx context.Context, st domain.SubTask) error {
	t, err := s.GetTask(ctx, st.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrMissingReference
	}
	users, err := encodeIDs(st.UsersReminder)
	if err != nil {
		return err
	}
	return addEntity(ctx, s.subtasks, subTaskEntity{
		tableKeys:     tableKeys{st.TaskID, st.ID},
		Title:         st.Title,
		Description:   st.Description,
		IsCompleted:   st.IsCompleted,
		Start:         st.Start,
		Due:           st.Due,
		DueReminder:   st.DueReminder,
		UsersReminder: users,
		CreatedAt:     st.CreatedAt,
		UpdatedAt:     st.UpdatedAt,
	})
}

func (e subTaskEntity) toDomain() (domain.SubTask, error) {
	users, err := decodeIDs(e.UsersReminder)
	if err != nil {
		return domain.SubTask{}, fmt.Errorf("decode reminder users of subtask %s: %w", e.RowKey, err)
	}
	return domain.SubTask{
		ID:            e.RowKey,
		Title:         e.Title,
		Description:   e.Description,
		TaskID:        e.PartitionKey,
		IsCompleted:   e.IsCompleted,
		Start:         utcPtr(e.Start),
		Due:           utcPtr(e.Due),
		DueReminder:   utcPtr(e.DueReminder),
		UsersReminder: users,
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}, nil
}

func (s *TableStore) SubTasksByTask(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	var out []domain.SubTask
	err := listEntities(ctx, s.subtasks, "PartitionKey eq "+quote(taskID), "", func(raw []byte) error {
		var ent subTaskEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		st, err := ent.toDomain()
		if err != nil {
			return err
		}
		out = append(out, st)
		return nil
	})
	return out, err
}

func (s *TableStore) UserExists(ctx context.Context, id string) (bool, error) {
	var ent userEntity
	_, ok, err := getEntity(ctx, s.users, encodeKey(id), encodeKey(id), &ent)
	return ok, err
}

func (s *TableStore) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := sonic.Marshal(userEntity{
		tableKeys: tableKeys{encodeKey(u.ID), encodeKey(u.ID)},
		Role:      u.Role,
		IsActive:  u.IsActive,
		IsBanned:  u.IsBanned,
	})
	if err != nil {
		return err
	}
	_, err = s.users.UpsertEntity(ctx, payload, nil)
	return err
}
