package repository

import (
	"context"
	"errors"

	"trading-challenges/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallengeFilter narrows ListChallenges. Zero values mean no filter.
type ChallengeFilter struct {
	Statuses    []models.ChallengeStatus
	Types       []models.ChallengeType
	CreatedByID uint
	Limit       int
	Offset      int
}

// CreateChallenge creates a new challenge
func (r *Repository) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

// GetChallengeByID retrieves a challenge by ID
func (r *Repository) GetChallengeByID(ctx context.Context, id uint) (*models.Challenge, error) {
	var challenge models.Challenge
	err := r.db.WithContext(ctx).Preload("CreatedBy").First(&challenge, id).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// UpdateChallengeFields applies a partial update to a challenge
func (r *Repository) UpdateChallengeFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Challenge{}).Where("id = ?", id).Updates(fields).Error
}

// SaveChallenge writes every column of the challenge
func (r *Repository) SaveChallenge(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(challenge).Error
}

// DeleteChallengeIfEmpty deletes a challenge only while it has no participants.
// It reports whether a row was removed.
func (r *Repository) DeleteChallengeIfEmpty(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND current_participants = 0", id).
		Delete(&models.Challenge{})
	return res.RowsAffected == 1, res.Error
}

// ListChallenges returns matching challenges, newest first, with the total count
func (r *Repository) ListChallenges(ctx context.Context, f ChallengeFilter) ([]models.Challenge, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Challenge{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if len(f.Types) > 0 {
		q = q.Where("type IN ?", f.Types)
	}
	if f.CreatedByID != 0 {
		q = q.Where("created_by_id = ?", f.CreatedByID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var challenges []models.Challenge
	err := q.Preload("CreatedBy").Order("created_at DESC").Order("id DESC").Find(&challenges).Error
	if err != nil {
		return nil, 0, err
	}
	return challenges, total, nil
}

// TransitionChallengeStatus moves a challenge from one status to another.
// It reports false when the challenge was no longer in the expected status.
func (r *Repository) TransitionChallengeStatus(
	ctx context.Context,
	id uint,
	from models.ChallengeStatus,
	to models.ChallengeStatus,
) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

// ReserveSeat increments current_participants unless the challenge is full.
func (r *Repository) ReserveSeat(ctx context.Context, challengeID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND current_participants < max_participants", challengeID).
		Update("current_participants", gorm.Expr("current_participants + 1"))
	return res.RowsAffected == 1, res.Error
}

// ReleaseSeat decrements current_participants without going below zero.
func (r *Repository) ReleaseSeat(ctx context.Context, challengeID uint) error {
	return r.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND current_participants > 0", challengeID).
		Update("current_participants", gorm.Expr("current_participants - 1")).Error
}

// GetParticipant returns the user's entry in a challenge, or nil when absent
func (r *Repository) GetParticipant(ctx context.Context, challengeID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetParticipantByID retrieves a participant scoped to its challenge
func (r *Repository) GetParticipantByID(ctx context.Context, challengeID, participantID uint) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("id = ? AND challenge_id = ?", participantID, challengeID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateParticipant inserts a participant row
func (r *Repository) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

// SaveParticipant writes every column of the participant
func (r *Repository) SaveParticipant(ctx context.Context, p *models.Participant) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error
}

// DeleteParticipant removes a participant row
func (r *Repository) DeleteParticipant(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Participant{}, id)
	return res.RowsAffected == 1, res.Error
}

// ListParticipants returns all entries of a challenge with their users loaded
func (r *Repository) ListParticipants(ctx context.Context, challengeID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("challenge_id = ?", challengeID).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}

// ListParticipantsByChallenges loads participants for many challenges at once
func (r *Repository) ListParticipantsByChallenges(ctx context.Context, challengeIDs []uint) ([]models.Participant, error) {
	var participants []models.Participant
	if len(challengeIDs) == 0 {
		return participants, nil
	}
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("challenge_id IN ?", challengeIDs).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}

// ListParticipantsByUser returns a user's entries with their challenges loaded
func (r *Repository) ListParticipantsByUser(ctx context.Context, userID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Preload("Challenge").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&participants).Error
	return participants, err
}

// ListParticipantsWithAccounts returns every participant that has an MT5 account id
func (r *Repository) ListParticipantsWithAccounts(ctx context.Context) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Challenge").
		Where("mt5_id <> ''").
		Order("created_at DESC").
		Find(&participants).Error
	return participants, err
}

// ParticipantTotals aggregates a user's participation across challenges.
type ParticipantTotals struct {
	Total     int64
	Completed int64
	Profit    float64
}

// GetParticipantTotals sums a user's participant rows
func (r *Repository) GetParticipantTotals(ctx context.Context, userID uint) (ParticipantTotals, error) {
	var totals ParticipantTotals
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, "+
				"COALESCE(SUM(profit), 0) AS profit",
			models.ParticipantStatusCompleted,
		).
		Where("user_id = ?", userID).
		Scan(&totals).Error
	return totals, err
}

// CountParticipantsByChallenge maps challenge ID to its participant row count
func (r *Repository) CountParticipantsByChallenge(ctx context.Context) (map[uint]int, error) {
	var rows []struct {
		ChallengeID uint
		Count       int
	}
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Select("challenge_id, COUNT(*) AS count").
		Group("challenge_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int, len(rows))
	for _, row := range rows {
		counts[row.ChallengeID] = row.Count
	}
	return counts, nil
}

// CountAllParticipants counts participant rows across all challenges
func (r *Repository) CountAllParticipants(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).Count(&n).Error
	return n, err
}

// HasOpenParticipation reports whether the user holds a non-withdrawn entry
// in an upcoming or active challenge.
func (r *Repository) HasOpenParticipation(ctx context.Context, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Joins("JOIN challenges ON challenges.id = challenge_participants.challenge_id").
		Where("challenge_participants.user_id = ? AND challenge_participants.status <> ?", userID, models.ParticipantStatusWithdrawn).
		Where("challenges.status IN ?", []models.ChallengeStatus{models.ChallengeStatusUpcoming, models.ChallengeStatusActive}).
		Count(&n).Error
	return n > 0, err
}

// RecountParticipants resets current_participants from the participant rows
// in a single statement.
func (r *Repository) RecountParticipants(ctx context.Context, challengeID uint) error {
	return r.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ?", challengeID).
		Update("current_participants", gorm.Expr(
			"(SELECT COUNT(*) FROM challenge_participants WHERE challenge_participants.challenge_id = challenges.id)",
		)).Error
}

// ListAllParticipants returns every participant with its user loaded
func (r *Repository) ListAllParticipants(ctx context.Context) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).Preload("User").Order("id ASC").Find(&participants).Error
	return participants, err
}
