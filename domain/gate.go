package domain

// Authorize allows the board owner and its members. Everyone else is forbidden.
func Authorize(board Board, userID string) error {
	if userID != "" {
		if board.OwnerID == userID {
			return nil
		}
		for _, m := range board.Members {
			if m == userID {
				return nil
			}
		}
	}
	return Forbidden("Usuário sem permissão para este board")
}
