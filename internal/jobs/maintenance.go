package jobs

import (
	"context"
	"time"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/services"
)

const (
	ChallengeStatusJobName = "challenge-status"
	MT5SyncJobName         = "mt5-sync"
	PushCleanupJobName     = "push-cleanup"
)

// SweepReport is the result of one status sweep. The challenge counts are
// promoted so the report reads {checked, updated, failed, ...}.
type SweepReport struct {
	*services.SweepResult
	SubscriptionsExpired int      `json:"subscriptions_expired"`
	NotificationsSent    int      `json:"notifications_sent"`
	MessagesPruned       int64    `json:"messages_pruned"`
	CountersCorrected    int      `json:"counters_corrected"`
	Warnings             []string `json:"warnings,omitempty"`
}

// Sweepers are the services the status sweep drives. Only Challenges is
// required; a nil entry skips its step.
type Sweepers struct {
	Challenges    *services.ChallengeService
	Subscriptions *services.SubscriptionService
	Notifications *services.NotificationService
	Chatboxes     *services.ChatboxService
}

// ChallengeStatusJob moves challenges along their lifecycle and runs the
// other time-driven housekeeping. Only the challenge sweep can fail the run;
// secondary steps are reported as warnings.
func ChallengeStatusJob(interval time.Duration, sw Sweepers) *Job {
	log := logger.Component(ChallengeStatusJobName)
	return NewJob(ChallengeStatusJobName, interval, func(ctx context.Context) (interface{}, error) {
		res, err := sw.Challenges.UpdateStatuses(ctx)
		if err != nil {
			return nil, err
		}
		report := &SweepReport{SweepResult: res}
		warn := func(step string, err error) {
			log.WithField("step", step).WithError(err).Warn("sweep step failed")
			report.Warnings = append(report.Warnings, step+": "+err.Error())
		}
		now := time.Now()

		if rec, err := sw.Challenges.ReconcileCounters(ctx); err != nil {
			warn("reconcile", err)
		} else {
			report.CountersCorrected = rec.Corrected
		}
		if sw.Subscriptions != nil {
			if n, err := sw.Subscriptions.ExpireDue(ctx, now); err != nil {
				warn("subscriptions", err)
			} else {
				report.SubscriptionsExpired = n
			}
		}
		if sw.Notifications != nil {
			if n, err := sw.Notifications.SendDue(ctx, now); err != nil {
				warn("notifications", err)
			} else {
				report.NotificationsSent = n
			}
		}
		if sw.Chatboxes != nil {
			if n, err := sw.Chatboxes.PruneExpired(ctx, now); err != nil {
				warn("chatboxes", err)
			} else {
				report.MessagesPruned = n
			}
		}
		return report, nil
	}, WithTimeout(interval))
}

// MT5SyncJob polls every linked MT5 account into the leaderboard. It runs
// once at start and then on its interval.
func MT5SyncJob(interval time.Duration, leaderboard *services.LeaderboardService) *Job {
	return NewJob(MT5SyncJobName, interval, func(ctx context.Context) (interface{}, error) {
		return leaderboard.SyncAllMT5(ctx)
	}, RunAtStart())
}

type CleanupReport struct {
	Removed int64 `json:"removed"`
}

// PushCleanupJob deletes push endpoints flagged as expired by earlier sends.
func PushCleanupJob(interval time.Duration, notifications *services.NotificationService) *Job {
	return NewJob(PushCleanupJobName, interval, func(ctx context.Context) (interface{}, error) {
		n, err := notifications.CleanupExpired(ctx)
		if err != nil {
			return nil, err
		}
		return &CleanupReport{Removed: n}, nil
	})
}
