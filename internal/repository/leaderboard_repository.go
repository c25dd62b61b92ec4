package repository

import (
	"context"
	"errors"

	"trading-challenges/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// leaderboardUpsertColumns are overwritten when a user's entry already exists.
var leaderboardUpsertColumns = []string{
	"username", "first_name", "last_name", "avatar", "account_id",
	"balance", "equity", "profit", "margin", "free_margin", "margin_level",
	"profit_percent", "positions", "updated_at",
}

// leaderboardSortColumns whitelists admin sort keys.
var leaderboardSortColumns = map[string]string{
	"profitPercent": "profit_percent DESC",
	"profit":        "profit DESC",
	"balance":       "balance DESC",
	"equity":        "equity DESC",
	"updatedAt":     "updated_at DESC",
	"username":      "username ASC",
}

// UpsertLeaderboardEntry inserts the entry or overwrites the user's existing row.
// The conflict target is user_id, so any ID already on entry is discarded.
func (r *Repository) UpsertLeaderboardEntry(ctx context.Context, entry *models.LeaderboardEntry) error {
	entry.ID = 0
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(leaderboardUpsertColumns),
	}).Create(entry).Error
}

// GetLeaderboardEntry returns the user's entry, or nil when the user has none
func (r *Repository) GetLeaderboardEntry(ctx context.Context, userID uint) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLeaderboardEntryByID retrieves an entry by its primary key
func (r *Repository) GetLeaderboardEntryByID(ctx context.Context, id uint) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// SaveLeaderboardEntry writes every column of the entry
func (r *Repository) SaveLeaderboardEntry(ctx context.Context, entry *models.LeaderboardEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// DeleteLeaderboardEntry removes an entry by ID
func (r *Repository) DeleteLeaderboardEntry(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.LeaderboardEntry{}, id)
	return res.RowsAffected == 1, res.Error
}

// DeleteLeaderboardEntryForUser removes the user's entry if present
func (r *Repository) DeleteLeaderboardEntryForUser(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.LeaderboardEntry{}).Error
}

// ListLeaderboard returns entries ordered by profit percent, newest first on ties
func (r *Repository) ListLeaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	return r.ListLeaderboardSorted(ctx, "profitPercent", limit, offset)
}

// ListLeaderboardSorted orders by a whitelisted sort key, falling back to profit percent
func (r *Repository) ListLeaderboardSorted(ctx context.Context, sortBy string, limit, offset int) ([]models.LeaderboardEntry, error) {
	order, ok := leaderboardSortColumns[sortBy]
	if !ok {
		order = leaderboardSortColumns["profitPercent"]
	}

	var entries []models.LeaderboardEntry
	q := r.db.WithContext(ctx).Order(order)
	if order != "updated_at DESC" {
		q = q.Order("updated_at DESC")
	}
	err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&entries).Error
	return entries, err
}

// CountLeaderboard counts all entries
func (r *Repository) CountLeaderboard(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.LeaderboardEntry{}).Count(&n).Error
	return n, err
}

// CountLeaderboardAbove counts entries with a strictly greater profit percent
func (r *Repository) CountLeaderboardAbove(ctx context.Context, profitPercent float64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.LeaderboardEntry{}).
		Where("profit_percent > ?", profitPercent).
		Count(&n).Error
	return n, err
}
