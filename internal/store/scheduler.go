package store

import "gorm.io/gorm"

// scheduledJobRow backs a lease-based leader election for the orchestrator
// and risk gate's cron-like jobs (SPEC_FULL §9: "daily 03:00 UTC
// generation", "every 4h activation", "daily 23:59 UTC goal tracking") so
// that running multiple replicas of a component doesn't double-fire a job.
type scheduledJobRow struct {
	JobName        string `gorm:"column:job_name;primaryKey"`
	HolderID       string `gorm:"column:holder_id"`
	LeaseExpiresAt int64  `gorm:"column:lease_expires_at"`
	LastRunAt      int64  `gorm:"column:last_run_at"`
}

func (scheduledJobRow) TableName() string { return "scheduled_jobs" }

// SchedulerStore implements lease-based leader election over scheduled_jobs
// (SPEC_FULL §5/§9).
type SchedulerStore struct{ db *gorm.DB }

// TryAcquire attempts to become (or remain) the leader for jobName until
// leaseExpiresAt. It succeeds if no row exists, the existing lease has
// expired, or holderID already holds the lease.
func (s *SchedulerStore) TryAcquire(jobName, holderID string, now, leaseExpiresAt int64) (bool, error) {
	var row scheduledJobRow
	err := s.db.Where("job_name = ?", jobName).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		row = scheduledJobRow{JobName: jobName, HolderID: holderID, LeaseExpiresAt: leaseExpiresAt}
		if err := s.db.Create(&row).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if row.HolderID != holderID && row.LeaseExpiresAt > now {
		return false, nil // another holder's lease is still live
	}
	res := s.db.Model(&scheduledJobRow{}).Where("job_name = ? AND lease_expires_at <= ?", jobName, now).
		Updates(map[string]any{"holder_id": holderID, "lease_expires_at": leaseExpiresAt})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lease renewal by the current holder before expiry.
		if row.HolderID == holderID {
			return true, s.db.Model(&scheduledJobRow{}).Where("job_name = ? AND holder_id = ?", jobName, holderID).
				Update("lease_expires_at", leaseExpiresAt).Error
		}
		return false, nil
	}
	return true, nil
}

// MarkRun records that jobName completed a run at `at`, for observability
// and for "did this fire today" idempotency checks.
func (s *SchedulerStore) MarkRun(jobName string, at int64) error {
	return s.db.Model(&scheduledJobRow{}).Where("job_name = ?", jobName).Update("last_run_at", at).Error
}

// LastRun returns the last recorded run time for jobName, or 0 if never run.
func (s *SchedulerStore) LastRun(jobName string) int64 {
	var row scheduledJobRow
	if err := s.db.Where("job_name = ?", jobName).First(&row).Error; err != nil {
		return 0
	}
	return row.LastRunAt
}
