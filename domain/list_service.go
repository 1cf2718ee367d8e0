package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type CreateListInput struct {
	Name    string
	BoardID string
	Pos     *int
	Closed  bool
	Color   string
	Limits  *ListLimits
}

type ListServiceStore interface {
	BoardStore
	ListStore
}

type ListService struct {
	st  ListServiceStore
	now func() time.Time
}

func NewListService(st ListServiceStore) ListService {
	return ListService{st: st, now: time.Now}
}

// Create adds a list to an existing board. List names are unique per board.
func (s ListService) Create(ctx context.Context, in CreateListInput) (*List, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Invalid("O nome da lista é obrigatório")
	}
	if in.BoardID == "" {
		return nil, Invalid("O board da lista é obrigatório")
	}
	board, err := s.st.GetBoard(ctx, in.BoardID)
	if err != nil {
		return nil, guard("get board", "Erro ao criar lista", err)
	}
	if board == nil {
		return nil, NotFound("Board não encontrado")
	}

	pos := 0
	if in.Pos != nil {
		pos = *in.Pos
	} else {
		existing, err := s.st.ListsByBoard(ctx, board.ID)
		if err != nil {
			return nil, guard("list lists", "Erro ao criar lista", err)
		}
		pos = nextPos(existing)
	}
	limits := DefaultListLimits()
	if in.Limits != nil {
		limits = *in.Limits
	}

	ts := s.now().UTC()
	l := List{
		ID:        NewID(),
		Name:      name,
		Pos:       pos,
		BoardID:   board.ID,
		Closed:    in.Closed,
		Color:     in.Color,
		Limits:    limits,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := s.st.InsertList(ctx, l); err != nil {
		var dup *DuplicateError
		switch {
		case errors.As(err, &dup):
			return nil, Conflict("Já existe uma lista com este nome neste board")
		case errors.Is(err, ErrMissingReference):
			return nil, NotFound("Board não encontrado")
		}
		return nil, guard("insert list", "Erro ao criar lista", err)
	}
	log.WithFields(log.Fields{"list": l.ID, "board": l.BoardID}).Info("list created")
	return &l, nil
}

func nextPos(lists []List) int {
	if len(lists) == 0 {
		return 0
	}
	top := lists[0].Pos
	for _, l := range lists[1:] {
		if l.Pos > top {
			top = l.Pos
		}
	}
	return top + 1
}
