package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trading-challenges/internal/jobs"
)

// JobsHandler exposes the maintenance jobs to external cron callers and
// to admins.
type JobsHandler struct {
	cronSecret string
	jobs       []*jobs.Job
	byName     map[string]*jobs.Job
}

func NewJobsHandler(cronSecret string, js ...*jobs.Job) *JobsHandler {
	h := &JobsHandler{cronSecret: cronSecret, jobs: js, byName: make(map[string]*jobs.Job, len(js))}
	for _, j := range js {
		h.byName[j.Name()] = j
	}
	return h
}

// cronAuthorized accepts the secret as "Authorization: Bearer <secret>" or
// "X-Cron-Secret". An unset secret disables the external triggers.
func (h *JobsHandler) cronAuthorized(c *gin.Context) bool {
	if h.cronSecret == "" {
		return false
	}
	got := c.GetHeader("X-Cron-Secret")
	if got == "" {
		got = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) == 1
}

func cronReply(c *gin.Context, status int, success bool, message string, data interface{}) {
	body := gin.H{
		"success":   success,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// Cron returns the external trigger for the named job. Only POST is
// accepted; register it with router.Any.
func (h *JobsHandler) Cron(name, label string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			cronReply(c, http.StatusMethodNotAllowed, false, "Method not allowed", nil)
			return
		}
		if !h.cronAuthorized(c) {
			cronReply(c, http.StatusUnauthorized, false, "Unauthorized", nil)
			return
		}
		h.run(c, name, label)
	}
}

// Trigger runs the named job on behalf of an admin.
func (h *JobsHandler) Trigger(name, label string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.run(c, name, label)
	}
}

func (h *JobsHandler) run(c *gin.Context, name, label string) {
	job, ok := h.byName[name]
	if !ok {
		cronReply(c, http.StatusNotFound, false, "Unknown job "+name, nil)
		return
	}
	result, err := job.Run(c.Request.Context())
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		cronReply(c, http.StatusConflict, false, label+" is already running", nil)
	case err != nil:
		cronReply(c, http.StatusInternalServerError, false, label+" failed", gin.H{"error": err.Error()})
	default:
		cronReply(c, http.StatusOK, true, label+" completed", result)
	}
}

// Statuses GET /admin/jobs
func (h *JobsHandler) Statuses(c *gin.Context) {
	out := make([]jobs.Status, 0, len(h.jobs))
	for _, j := range h.jobs {
		out = append(out, j.Status())
	}
	respondOK(c, out)
}
