package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"robot-market/internal/models"
)

var ErrRatingNotFound = errors.New("rating not found")

// RatingRepository wraps the two rating procedures and the per-user lookup.
type RatingRepository interface {
	AverageRating(ctx context.Context, robotID string) (float64, error)
	UserRating(ctx context.Context, robotID, userID string) (models.RobotRating, error)
	UpsertRating(ctx context.Context, robotID, userID string, rating int, comment string) error
}

// RatingRepo is a sqlx implementation of RatingRepository.
type RatingRepo struct {
	db *sqlx.DB
}

// NewRatingRepo constructs a RatingRepo.
func NewRatingRepo(db *sqlx.DB) *RatingRepo {
	return &RatingRepo{db: db}
}

// AverageRating calls get_robot_rating; a listing without ratings averages 0.
func (r *RatingRepo) AverageRating(ctx context.Context, robotID string) (float64, error) {
	var avg float64
	err := r.db.GetContext(ctx, &avg, `SELECT get_robot_rating($1)`, robotID)
	return avg, err
}

// UserRating returns the caller's own rating of a listing.
func (r *RatingRepo) UserRating(ctx context.Context, robotID, userID string) (models.RobotRating, error) {
	var rating models.RobotRating
	err := r.db.GetContext(ctx, &rating, `SELECT robot_id, user_id, rating, comment, created_at, updated_at
        FROM robot_ratings WHERE robot_id=$1 AND user_id=$2`, robotID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RobotRating{}, ErrRatingNotFound
	}
	return rating, err
}

// UpsertRating calls upsert_robot_rating.
func (r *RatingRepo) UpsertRating(ctx context.Context, robotID, userID string, rating int, comment string) error {
	_, err := r.db.ExecContext(ctx, `SELECT upsert_robot_rating($1, $2, $3::SMALLINT, $4)`, robotID, userID, rating, comment)
	return err
}
