package tictactoe

import (
	"fmt"

	"github.com/vanishbox/tictactoe-backend/internal/apperror"
	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

// ApplyMove - places mark at cell and advances the game: win detection first,
// then the vanishing rule, then the turn flip. The state is untouched when
// the move is rejected.
func ApplyMove(game *entity.GameState, mark string, cell int) error {
	if game.IsFinished() {
		return apperror.ErrGameFinished
	}

	if err := validateMove(game, mark, cell); err != nil {
		return fmt.Errorf("invalid turn: %w", err)
	}

	game.Board[cell] = mark
	game.MoveHistory = append(game.MoveHistory, cell)

	if winner := CheckWinner(game.Board); winner != entity.EmptyCell {
		game.Winner = winner
		tallyWin(game, winner)

		// no vanish and no turn flip on a winning move; the board stays
		// frozen until the next reset
		return nil
	}

	if boardFull(game.Board) {
		vanishOldest(game)
	}

	next := entity.OpponentMark(mark)
	game.CurrentPlayer = next
	game.PlayerTurn = next

	return nil
}

// Reset - clears the board for the next round. The side that lost the last
// round opens; tallies, names and the claimed-seat count carry over.
func Reset(game *entity.GameState) {
	opener := entity.PlayerX
	if game.Winner != entity.EmptyCell {
		opener = entity.OpponentMark(game.Winner)
	}

	game.Board = [9]string{}
	game.MoveHistory = []int{}
	game.Winner = entity.EmptyCell
	game.CurrentPlayer = opener
	game.PlayerTurn = opener
}

// CheckWinner - returns the symbol holding a full triple, or the empty cell.
// Triples satisfied by one move always belong to the same symbol, so the
// first match is enough.
func CheckWinner(board [9]string) string {
	for _, combo := range entity.WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return a
		}
	}

	return entity.EmptyCell
}

// validateMove - checks if the move is valid.
func validateMove(game *entity.GameState, mark string, cell int) error {
	if cell < 0 || cell >= len(game.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if !entity.IsValidMark(mark) {
		return fmt.Errorf("%w: %q", apperror.ErrInvalidMark, mark)
	}

	if game.PlayerTurn != mark {
		return apperror.ErrNotYourTurn
	}

	if game.Board[cell] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	return nil
}

// vanishOldest - removes the oldest surviving mark so the board never stays
// full. MoveHistory[0] names the cell by invariant.
func vanishOldest(game *entity.GameState) {
	oldest := game.MoveHistory[0]
	game.Board[oldest] = entity.EmptyCell
	game.MoveHistory = game.MoveHistory[1:]
}

func boardFull(board [9]string) bool {
	for _, cell := range board {
		if cell == entity.EmptyCell {
			return false
		}
	}

	return true
}

func tallyWin(game *entity.GameState, winner string) {
	game.EnsureWinCount()

	if winner == entity.PlayerX {
		game.WinCount.Player1++
	} else {
		game.WinCount.Player2++
	}
}
