package domain

import "time"

// Board is the top-level container. Lists and tasks reference it by id.
type Board struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []string  `json:"members"`
	OwnerID     string    `json:"owner_id"`
	ShortLink   string    `json:"short_link"`
	IsPrivate   bool      `json:"is_private"`
	IsArchived  bool      `json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CardLimit caps how many cards a list accepts before warning or refusing.
type CardLimit struct {
	Status    string `json:"status"`
	DisableAt int    `json:"disable_at"`
	WarnAt    int    `json:"warn_at"`
}

type ListLimits struct {
	OpenPerList  CardLimit `json:"open_per_list"`
	TotalPerList CardLimit `json:"total_per_list"`
}

// DefaultListLimits returns the limits applied when a list is created without any.
func DefaultListLimits() ListLimits {
	return ListLimits{
		OpenPerList:  CardLimit{Status: "ok", DisableAt: 5000, WarnAt: 4000},
		TotalPerList: CardLimit{Status: "ok", DisableAt: 1000000, WarnAt: 800000},
	}
}

type List struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pos       int        `json:"pos"`
	BoardID   string     `json:"id_board"`
	Closed    bool       `json:"closed"`
	Color     string     `json:"color"`
	Limits    ListLimits `json:"limits"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Task lives in exactly one list. BoardID always mirrors the list's board.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ListID        string     `json:"list_id"`
	BoardID       string     `json:"board_id"`
	IsCompleted   bool       `json:"is_completed"`
	Start         *time.Time `json:"start,omitempty"`
	Due           *time.Time `json:"due,omitempty"`
	DueReminder   *time.Time `json:"due_reminder,omitempty"`
	Labels        []string   `json:"labels"`
	UsersReminder []string   `json:"users_reminder"`
	ShortLink     string     `json:"short_link"`
	ShortURL      string     `json:"short_url"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type SubTask struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TaskID        string     `json:"task_id"`
	IsCompleted   bool       `json:"is_completed"`
	Start         *time.Time `json:"start,omitempty"`
	Due           *time.Time `json:"due,omitempty"`
	DueReminder   *time.Time `json:"due_reminder,omitempty"`
	UsersReminder []string   `json:"users_reminder"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// User is managed elsewhere; the api only checks that referenced ids exist.
type User struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
	IsBanned bool   `json:"is_banned"`
}

// BoardView is a board with its lists and tasks attached.
type BoardView struct {
	Board
	MemberQty int    `json:"member_qty"`
	Lists     []List `json:"lists"`
	Tasks     []Task `json:"tasks"`
}

// BoardSummary is the paged listing shape. Members are not exposed.
type BoardSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	ShortLink   string    `json:"short_link"`
	IsPrivate   bool      `json:"is_private"`
	IsArchived  bool      `json:"is_archived"`
	MemberQty   int       `json:"member_qty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summarize drops the member ids and keeps their count.
func (b Board) Summarize() BoardSummary {
	return BoardSummary{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		OwnerID:     b.OwnerID,
		ShortLink:   b.ShortLink,
		IsPrivate:   b.IsPrivate,
		IsArchived:  b.IsArchived,
		MemberQty:   len(b.Members),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

type TaskView struct {
	Task
	SubTasks []SubTask `json:"subtasks"`
}
