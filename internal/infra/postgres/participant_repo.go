package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizroom-service/internal/domain"
)

// ParticipantRepo is the durable implementation of app.ParticipantRepository.
type ParticipantRepo struct {
	db *bun.DB
}

func NewParticipantRepo(db *bun.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

func (r *ParticipantRepo) Add(ctx context.Context, p *domain.Participant) error {
	row := &participantRow{
		ID:          p.ID,
		RoomID:      p.RoomID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
		FinishedAt:  p.FinishedAt,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) Get(ctx context.Context, id string) (domain.Participant, error) {
	row := new(participantRow)
	err := r.db.NewSelect().Model(row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return row.toDomain(), nil
}

// MarkFinished sets finished_at once; the guard keeps the first timestamp on
// repeat calls.
func (r *ParticipantRepo) MarkFinished(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*participantRow)(nil)).
		Set("finished_at = ?", at).
		Where("id = ?", id).
		Where("finished_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// Either already finished (fine) or unknown id.
		exists, err := r.db.NewSelect().Model((*participantRow)(nil)).Where("id = ?", id).Exists(ctx)
		if err != nil {
			return fmt.Errorf("mark finished: %w", err)
		}
		if !exists {
			return domain.ErrParticipantNotFound
		}
	}
	return nil
}

func (r *ParticipantRepo) ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("p.room_id = ?", roomID).
		OrderExpr("p.joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	parts := make([]domain.Participant, 0, len(rows))
	for i := range rows {
		parts = append(parts, rows[i].toDomain())
	}
	return parts, nil
}
