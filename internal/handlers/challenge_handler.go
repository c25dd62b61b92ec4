package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

type ChallengeHandler struct {
	challenges  *services.ChallengeService
	leaderboard *services.LeaderboardService
}

func NewChallengeHandler(challenges *services.ChallengeService, leaderboard *services.LeaderboardService) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges, leaderboard: leaderboard}
}

// ListChallenges GET /challenges?status=active,upcoming&type=swing&page&limit
func (h *ChallengeHandler) ListChallenges(c *gin.Context) {
	challenges, pagination, err := h.challenges.ListChallenges(c.Request.Context(), services.ListChallengesQuery{
		Status:      c.Query("status"),
		Type:        c.Query("type"),
		PageRequest: pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"challenges": challenges, "pagination": pagination})
}

// GetChallenge GET /challenges/:id
func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	challenge, err := h.challenges.GetChallenge(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, challenge)
}

// CreateChallenge POST /challenges (admin)
func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	var req services.CreateChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	challenge, err := h.challenges.CreateChallenge(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Challenge created successfully", challenge)
}

// UpdateChallenge PUT /challenges/:id (admin)
func (h *ChallengeHandler) UpdateChallenge(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	challenge, err := h.challenges.UpdateChallenge(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Challenge updated successfully", challenge)
}

// DeleteChallenge DELETE /challenges/:id (admin)
func (h *ChallengeHandler) DeleteChallenge(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.challenges.DeleteChallenge(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Challenge deleted successfully", nil)
}

// MyChallenges GET /challenges/my
func (h *ChallengeHandler) MyChallenges(c *gin.Context) {
	out, err := h.challenges.MyChallenges(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, out)
}

// AdminChallenges GET /challenges/admin/mine
func (h *ChallengeHandler) AdminChallenges(c *gin.Context) {
	out, err := h.challenges.AdminChallenges(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, out)
}

// Join POST /challenges/:id/join
func (h *ChallengeHandler) Join(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		MT5Account models.MT5Account `json:"mt5_account"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.challenges.JoinChallenge(c.Request.Context(), id, viewer(c).UserID, req.MT5Account)
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Successfully joined the challenge"
	if res.SetupCompleted {
		msg = "Challenge setup completed"
	}
	respondMessage(c, msg, res)
}

// Leave POST /challenges/:id/leave
func (h *ChallengeHandler) Leave(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.challenges.LeaveChallenge(c.Request.Context(), id, viewer(c).UserID); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Successfully left the challenge", nil)
}

// MyAccount GET /challenges/:id/account
func (h *ChallengeHandler) MyAccount(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	account, err := h.challenges.MyAccount(c.Request.Context(), id, viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, account)
}

// Participants GET /challenges/:id/participants (admin)
func (h *ChallengeHandler) Participants(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	roster, err := h.challenges.ListParticipants(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, roster)
}

// UpdateParticipant PUT /challenges/:id/participants/:participantId (admin)
func (h *ChallengeHandler) UpdateParticipant(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	pid, ok := uintParam(c, "participantId")
	if !ok {
		return
	}
	var req services.ParticipantUpdate
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.challenges.UpdateParticipant(c.Request.Context(), id, pid, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Participant updated successfully", p)
}

// RemoveParticipant DELETE /challenges/:id/participants/:participantId (admin)
func (h *ChallengeHandler) RemoveParticipant(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	pid, ok := uintParam(c, "participantId")
	if !ok {
		return
	}
	if err := h.challenges.RemoveParticipant(c.Request.Context(), id, pid); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Participant removed", nil)
}

// Leaderboard GET /challenges/:id/leaderboard?limit&skip
func (h *ChallengeHandler) Leaderboard(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	board, err := h.leaderboard.ForChallenge(c.Request.Context(), id, intQuery(c, "limit", 50), intQuery(c, "skip", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, board)
}

// MT5Accounts GET /challenges/admin/mt5-accounts
func (h *ChallengeHandler) MT5Accounts(c *gin.Context) {
	accounts, err := h.challenges.AdminMT5Accounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, accounts)
}

// ReconcileCounters POST /challenges/admin/reconcile
func (h *ChallengeHandler) ReconcileCounters(c *gin.Context) {
	res, err := h.challenges.ReconcileCounters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

// SyncLeaderboard POST /challenges/admin/sync-leaderboard
func (h *ChallengeHandler) SyncLeaderboard(c *gin.Context) {
	res, err := h.challenges.SyncLeaderboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Leaderboard synced", res)
}
