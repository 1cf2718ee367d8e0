package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// shortLinkRaces bounds how often a board insert is retried after another
// writer claimed the same short link between the check and the insert.
const shortLinkRaces = 3

type CreateBoardInput struct {
	Name        string
	Description string
	Members     []string
	OwnerID     string
	IsPrivate   bool
}

// BoardService creates boards.
type BoardService struct {
	st  BoardStore
	gen ShortLinkGenerator
	now func() time.Time
}

func NewBoardService(st BoardStore, gen ShortLinkGenerator) BoardService {
	return BoardService{st: st, gen: gen, now: time.Now}
}

// Create stores a new board with a fresh short link. Board names are unique.
func (s BoardService) Create(ctx context.Context, in CreateBoardInput) (*Board, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Invalid("O nome do board é obrigatório")
	}
	if in.OwnerID == "" {
		return nil, Invalid("O dono do board é obrigatório")
	}
	ts := s.now().UTC()
	b := Board{
		ID:          NewID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Members:     uniqueIDs(in.Members),
		OwnerID:     in.OwnerID,
		IsPrivate:   in.IsPrivate,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	for attempt := 0; attempt < shortLinkRaces; attempt++ {
		link, err := s.gen.Generate(ctx, s.st.ShortLinkExists)
		if err != nil {
			return nil, guard("generate short link", "Erro ao criar board", err)
		}
		b.ShortLink = link
		err = s.st.InsertBoard(ctx, b)
		if err == nil {
			log.WithFields(log.Fields{"board": b.ID, "owner": b.OwnerID}).Info("board created")
			return &b, nil
		}
		var dup *DuplicateError
		if !errors.As(err, &dup) {
			return nil, guard("insert board", "Erro ao criar board", err)
		}
		if dup.Field != "short_link" {
			return nil, Conflict("Já existe um board com este nome")
		}
		log.WithField("short_link", link).Warn("short link taken concurrently, regenerating")
	}
	return nil, guard("insert board", "Erro ao criar board", ErrGenerationExhausted)
}

// uniqueIDs drops empty and repeated ids and keeps the first occurrence order.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
