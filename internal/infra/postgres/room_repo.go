package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"quizroom-service/internal/domain"
)

// RoomRepo is the durable implementation of app.RoomRepository. The partial
// unique index on (room_code) WHERE active is the storage-side backstop for
// code uniqueness among live rooms.
type RoomRepo struct {
	db *bun.DB
}

func NewRoomRepo(db *bun.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	res, err := r.db.NewInsert().
		Model(roomToRow(room)).
		On("CONFLICT (room_code) WHERE active DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if affected == 0 {
		return domain.ErrCodeConflict
	}
	return nil
}

func (r *RoomRepo) Get(ctx context.Context, id string) (domain.Room, error) {
	row := new(roomRow)
	err := r.db.NewSelect().Model(row).Where("r.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room: %w", err)
	}
	return row.toDomain(), nil
}

// GetByCode resolves a join code to its most recent room. Ended rooms stay
// resolvable so the teacher can still read results.
func (r *RoomRepo) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	row := new(roomRow)
	err := r.db.NewSelect().
		Model(row).
		Where("r.room_code = ?", code).
		OrderExpr("r.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room by code: %w", err)
	}
	return row.toDomain(), nil
}

func (r *RoomRepo) Update(ctx context.Context, room *domain.Room) error {
	res, err := r.db.NewUpdate().
		Model(roomToRow(room)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if affected == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}
