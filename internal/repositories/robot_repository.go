package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"robot-market/internal/models"
)

var ErrRobotNotFound = errors.New("robot not found")

// RobotRepository abstracts listing persistence.
type RobotRepository interface {
	ListActive(ctx context.Context) ([]models.Robot, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.Robot, error)
	GetRobot(ctx context.Context, robotID string) (models.Robot, error)
	CreateRobot(ctx context.Context, sellerID string, in models.RobotInput) (models.Robot, error)
	UpdateRobot(ctx context.Context, robotID, sellerID string, in models.RobotInput) (models.Robot, error)
	SetActive(ctx context.Context, robotID, sellerID string, active bool) (models.Robot, error)
	DeleteRobot(ctx context.Context, robotID, sellerID string) error
}

// RobotRepo is a sqlx implementation of RobotRepository.
type RobotRepo struct {
	db *sqlx.DB
}

// NewRobotRepo constructs a RobotRepo.
func NewRobotRepo(db *sqlx.DB) *RobotRepo {
	return &RobotRepo{db: db}
}

const robotColumns = `id, seller_id, title, description, long_description, price, platform,
    features, compatibility, images, active, created_at, updated_at`

const robotWithRating = `SELECT ` + robotColumns + `, get_robot_rating(id) AS rating FROM robots`

// ListActive returns active listings with their average rating, newest first.
func (r *RobotRepo) ListActive(ctx context.Context) ([]models.Robot, error) {
	robots := []models.Robot{}
	err := r.db.SelectContext(ctx, &robots, robotWithRating+` WHERE active = TRUE ORDER BY created_at DESC`)
	return robots, err
}

// ListBySeller returns every listing of a seller, newest first.
func (r *RobotRepo) ListBySeller(ctx context.Context, sellerID string) ([]models.Robot, error) {
	robots := []models.Robot{}
	err := r.db.SelectContext(ctx, &robots, robotWithRating+` WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
	return robots, err
}

// GetRobot fetches a listing by id.
func (r *RobotRepo) GetRobot(ctx context.Context, robotID string) (models.Robot, error) {
	var robot models.Robot
	err := r.db.GetContext(ctx, &robot, robotWithRating+` WHERE id = $1`, robotID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Robot{}, ErrRobotNotFound
	}
	return robot, err
}

// CreateRobot inserts a listing owned by sellerID.
func (r *RobotRepo) CreateRobot(ctx context.Context, sellerID string, in models.RobotInput) (models.Robot, error) {
	var robot models.Robot
	err := r.db.GetContext(ctx, &robot, `INSERT INTO robots
        (seller_id, title, description, long_description, price, platform, features, compatibility, images)
        VALUES ($1, $2, $3, $4, $5, $6::trading_platform, $7, $8, $9)
        RETURNING `+robotColumns,
		sellerID, in.Title, in.Description, in.LongDescription, in.Price, string(in.Platform),
		pq.StringArray(in.Features), pq.StringArray(in.Compatibility), pq.StringArray(in.Images))
	return robot, err
}

// UpdateRobot rewrites the editable fields of a listing owned by sellerID.
func (r *RobotRepo) UpdateRobot(ctx context.Context, robotID, sellerID string, in models.RobotInput) (models.Robot, error) {
	var robot models.Robot
	err := r.db.GetContext(ctx, &robot, `UPDATE robots SET
        title=$3, description=$4, long_description=$5, price=$6, platform=$7::trading_platform,
        features=$8, compatibility=$9, images=$10, updated_at=NOW()
        WHERE id=$1 AND seller_id=$2
        RETURNING `+robotColumns,
		robotID, sellerID, in.Title, in.Description, in.LongDescription, in.Price, string(in.Platform),
		pq.StringArray(in.Features), pq.StringArray(in.Compatibility), pq.StringArray(in.Images))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Robot{}, ErrRobotNotFound
	}
	return robot, err
}

// SetActive toggles the visibility of a listing owned by sellerID.
func (r *RobotRepo) SetActive(ctx context.Context, robotID, sellerID string, active bool) (models.Robot, error) {
	var robot models.Robot
	err := r.db.GetContext(ctx, &robot, `UPDATE robots SET active=$3, updated_at=NOW()
        WHERE id=$1 AND seller_id=$2 RETURNING `+robotColumns, robotID, sellerID, active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Robot{}, ErrRobotNotFound
	}
	return robot, err
}

// DeleteRobot removes a listing owned by sellerID.
func (r *RobotRepo) DeleteRobot(ctx context.Context, robotID, sellerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM robots WHERE id=$1 AND seller_id=$2`, robotID, sellerID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRobotNotFound
	}
	return nil
}
