package domain

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
)

// HierarchyStore is the read side needed to assemble board views.
type HierarchyStore interface {
	BoardStore
	ListStore
	TaskStore
	SubTaskStore
}

// Aggregator assembles boards with their lists, tasks and subtasks.
type Aggregator struct {
	st            HierarchyStore
	shortLinkBase string
}

func NewAggregator(st HierarchyStore, shortLinkBase string) Aggregator {
	return Aggregator{st: st, shortLinkBase: shortLinkBase}
}

// FetchBoard resolves ref as a board id first and as a short link second.
// Private boards are only visible to their owner and members.
func (a Aggregator) FetchBoard(ctx context.Context, ref, actingUser string) (*BoardView, error) {
	if ref == "" {
		return nil, Invalid("Identificador do board é obrigatório")
	}
	b, err := a.resolveBoard(ctx, ref)
	if err != nil {
		return nil, guard("fetch board", "Erro ao buscar board", err)
	}
	if b == nil {
		return nil, NotFound("Board não encontrado")
	}
	if b.IsPrivate {
		if err := Authorize(*b, actingUser); err != nil {
			log.WithFields(log.Fields{"board": b.ID, "user": actingUser}).Warn("private board read denied")
			return nil, err
		}
	}

	lists, err := a.st.ListsByBoard(ctx, b.ID)
	if err != nil {
		return nil, guard("fetch board lists", "Erro ao buscar board", err)
	}
	sort.SliceStable(lists, func(i, j int) bool { return lists[i].Pos < lists[j].Pos })
	tasks, err := a.st.TasksByBoard(ctx, b.ID)
	if err != nil {
		return nil, guard("fetch board tasks", "Erro ao buscar board", err)
	}
	if lists == nil {
		lists = []List{}
	}
	if tasks == nil {
		tasks = []Task{}
	}

	view := &BoardView{Board: *b, MemberQty: len(b.Members), Lists: lists, Tasks: tasks}
	view.ShortLink = a.shortLinkBase + b.ShortLink
	return view, nil
}

func (a Aggregator) resolveBoard(ctx context.Context, ref string) (*Board, error) {
	if IsID(ref) {
		b, err := a.st.GetBoard(ctx, ref)
		if err != nil || b != nil {
			return b, err
		}
	}
	return a.st.GetBoardByShortLink(ctx, ref)
}

// FetchBoardsPage lists the boards userID owns or belongs to.
func (a Aggregator) FetchBoardsPage(ctx context.Context, userID string, opts PageOptions) (*Page[BoardSummary], error) {
	if userID == "" {
		return nil, Invalid("Usuário é obrigatório")
	}
	opts = opts.Normalize()
	boards, err := a.st.ListBoardsForUser(ctx, userID, opts)
	if err != nil {
		return nil, guard("list boards", "Erro ao listar boards", err)
	}
	total, err := a.st.CountBoardsForUser(ctx, userID)
	if err != nil {
		return nil, guard("count boards", "Erro ao listar boards", err)
	}
	items := make([]BoardSummary, 0, len(boards))
	for _, b := range boards {
		s := b.Summarize()
		s.ShortLink = a.shortLinkBase + s.ShortLink
		items = append(items, s)
	}
	return &Page[BoardSummary]{Items: items, Meta: ComputePageMeta(total, opts.Page, opts.Limit)}, nil
}

// FetchTaskWithSubtasks returns a task and every subtask that references it.
func (a Aggregator) FetchTaskWithSubtasks(ctx context.Context, taskID string) (*TaskView, error) {
	if taskID == "" {
		return nil, Invalid("Identificador da task é obrigatório")
	}
	t, err := a.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, guard("fetch task", "Erro ao buscar task", err)
	}
	if t == nil {
		return nil, NotFound("Task não encontrada")
	}
	subs, err := a.st.SubTasksByTask(ctx, taskID)
	if err != nil {
		return nil, guard("fetch subtasks", "Erro ao buscar task", err)
	}
	if subs == nil {
		subs = []SubTask{}
	}
	return &TaskView{Task: *t, SubTasks: subs}, nil
}
