package store

import (
	"database/sql"
	"fmt"
)

// InsertGameResult writes a finished game's result exactly once.
func (s *Store) InsertGameResult(r GameResult) error {
	_, err := s.db.Exec(
		`INSERT INTO games (game_id, user1, user2, score1, score2, start_time, end_state, winner, disconnected)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GameID, r.User1ID, r.User2ID, r.Score1, r.Score2, r.StartTime, r.EndState,
		nullableInt(r.WinnerID), nullableInt(r.DisconnectedID),
	)
	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}
	return nil
}

// RecentGames returns the most recent games a user played, for the
// read-only dashboard.
func (s *Store) RecentGames(userID int, limit int) ([]GameResult, error) {
	rows, err := s.db.Queryx(
		`SELECT game_id, user1, user2, score1, score2, start_time, end_state, winner, disconnected
		 FROM games WHERE user1 = ? OR user2 = ? ORDER BY start_time DESC LIMIT ?`,
		userID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent games query: %w", err)
	}
	defer rows.Close()

	var results []GameResult
	for rows.Next() {
		var (
			r      GameResult
			winner sql.NullInt64
			discon sql.NullInt64
		)
		if err := rows.Scan(&r.GameID, &r.User1ID, &r.User2ID, &r.Score1, &r.Score2,
			&r.StartTime, &r.EndState, &winner, &discon); err != nil {
			return nil, fmt.Errorf("scan game result: %w", err)
		}
		if winner.Valid {
			v := int(winner.Int64)
			r.WinnerID = &v
		}
		if discon.Valid {
			v := int(discon.Int64)
			r.DisconnectedID = &v
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
