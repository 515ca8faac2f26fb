package app

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
)

// LeaderboardRow is one ranked participant.
type LeaderboardRow struct {
	ParticipantID    string `json:"participantId"`
	DisplayName      string `json:"displayName"`
	Score            int    `json:"score"`
	Answered         int    `json:"answered"`
	Percentage       int    `json:"percentage"`
	TotalTimeSeconds int    `json:"totalTimeSeconds"`
	Finished         bool   `json:"finished"`
}

// Leaderboard ranks a room's participants: score descending, total answer
// time ascending, then join order so recomputation is stable.
func (s *RoomService) Leaderboard(ctx context.Context, roomID string) ([]LeaderboardRow, error) {
	parts, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListForParticipants(ctx, participantIDs(parts))
	if err != nil {
		return nil, err
	}

	scores := make(map[string]*LeaderboardRow, len(parts))
	rows := make([]LeaderboardRow, 0, len(parts))
	for _, p := range parts {
		rows = append(rows, LeaderboardRow{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Finished:      p.Finished(),
		})
	}
	for i := range rows {
		scores[rows[i].ParticipantID] = &rows[i]
	}
	for _, a := range answers {
		row, ok := scores[a.ParticipantID]
		if !ok {
			continue
		}
		row.Answered++
		if a.Correct {
			row.Score++
		}
		row.TotalTimeSeconds += a.TimeTakenSeconds
	}
	for i := range rows {
		rows[i].Percentage = percentage(rows[i].Score, rows[i].Answered)
	}

	// rows start in join order; SliceStable keeps that as the final tie-break.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].TotalTimeSeconds < rows[j].TotalTimeSeconds
	})
	return rows, nil
}

func percentage(score, answered int) int {
	if answered == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(answered) * 100))
}

// WriteResultsCSV exports the room's leaderboard, one row per participant in
// rank order.
func (s *RoomService) WriteResultsCSV(ctx context.Context, roomID string, w io.Writer) error {
	rows, err := s.Leaderboard(ctx, roomID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "score", "total", "percentage", "total_time_seconds"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.DisplayName,
			strconv.Itoa(row.Score),
			strconv.Itoa(row.Answered),
			strconv.Itoa(row.Percentage),
			strconv.Itoa(row.TotalTimeSeconds),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
