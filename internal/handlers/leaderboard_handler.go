package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/services"
)

type LeaderboardHandler struct {
	leaderboard *services.LeaderboardService
}

func NewLeaderboardHandler(leaderboard *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard}
}

// List GET /leaderboard?limit&skip
func (h *LeaderboardHandler) List(c *gin.Context) {
	page, err := h.leaderboard.List(c.Request.Context(), intQuery(c, "limit", 50), intQuery(c, "skip", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

// Stats GET /leaderboard/stats
func (h *LeaderboardHandler) Stats(c *gin.Context) {
	stats, err := h.leaderboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

// UserRank GET /leaderboard/user/:userId
func (h *LeaderboardHandler) UserRank(c *gin.Context) {
	id, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	rank, err := h.leaderboard.GetUserRank(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rank)
}

// MyRank GET /leaderboard/me
func (h *LeaderboardHandler) MyRank(c *gin.Context) {
	rank, err := h.leaderboard.GetUserRank(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rank)
}

// ListAll GET /leaderboard/admin/all?page&limit&sortBy (admin)
func (h *LeaderboardHandler) ListAll(c *gin.Context) {
	entries, pagination, err := h.leaderboard.ListAll(c.Request.Context(), pageQuery(c), c.DefaultQuery("sortBy", "profitPercent"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"entries": entries, "pagination": pagination})
}

// UpdateEntry PUT /leaderboard/admin/:id (admin)
func (h *LeaderboardHandler) UpdateEntry(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.LeaderboardEntryUpdate
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.leaderboard.UpdateEntry(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Leaderboard entry updated", entry)
}

// DeleteEntry DELETE /leaderboard/admin/:id (admin)
func (h *LeaderboardHandler) DeleteEntry(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.leaderboard.DeleteEntry(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Leaderboard entry deleted", nil)
}

// SyncMine POST /leaderboard/sync-mine refreshes the caller's own entry
func (h *LeaderboardHandler) SyncMine(c *gin.Context) {
	entry, err := h.leaderboard.SyncUserMT5(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "MT5 data updated", entry)
}
