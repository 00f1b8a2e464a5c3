package credits

import (
	"fmt"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DefaultExpirationBatchSize is the number of users expired per transaction.
const DefaultExpirationBatchSize = 100

// ExpirationResult is the aggregate summary of one expiration run.
type ExpirationResult struct {
	UsersCount     int   `json:"users_count"`
	ProcessedCount int   `json:"processed_count"`
	ErrorCount     int   `json:"error_count"`
	ExpiredCredits int64 `json:"expired_credits"`
}

// ExpirationJob zeroes out expired lots across all users. It must run before
// distribution in the same scheduling cycle so expired credit cannot be
// counted as available balance during a grant decision.
type ExpirationJob struct {
	svc       *Service
	repo      repository.LedgerRepository
	batchSize int
}

// NewExpirationJob creates an expiration job. batchSize <= 0 falls back to
// the default of 100.
func NewExpirationJob(svc *Service, repo repository.LedgerRepository, batchSize int) *ExpirationJob {
	if batchSize <= 0 {
		batchSize = DefaultExpirationBatchSize
	}
	return &ExpirationJob{svc: svc, repo: repo, batchSize: batchSize}
}

// Run collects every user with at least one unprocessed expired lot and
// processes them in fixed-size batches, one transaction per batch. A
// batch-level failure rolls the batch back and counts all its users as
// errored; remaining batches still run.
func (j *ExpirationJob) Run() (*ExpirationResult, error) {
	now := j.svc.now()
	result := &ExpirationResult{}

	// Snapshot the user set first: processing removes users from the
	// predicate, which would make live offset paging skip entries.
	var userIDs []uint
	for offset := 0; ; offset += j.batchSize {
		page, err := j.repo.FindUserIDsWithExpirableLots(now, offset, j.batchSize)
		if err != nil {
			return nil, fmt.Errorf("find users with expirable lots: %w", err)
		}
		userIDs = append(userIDs, page...)
		if len(page) < j.batchSize {
			break
		}
	}
	result.UsersCount = len(userIDs)
	if len(userIDs) == 0 {
		return result, nil
	}

	for start := 0; start < len(userIDs); start += j.batchSize {
		end := start + j.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batch := userIDs[start:end]

		var batchExpired int64
		err := j.svc.inTx(nil, func(tx *gorm.DB) error {
			for _, userID := range batch {
				expired, err := j.svc.ProcessExpiredCredits(userID, tx)
				if err != nil {
					return fmt.Errorf("user %d: %w", userID, err)
				}
				batchExpired += expired
			}
			return nil
		})
		if err != nil {
			// Per-user failure inside a batch is not separated; the whole
			// batch counts as errored.
			result.ErrorCount += len(batch)
			log.Errorf("[Expiration] batch %d-%d failed: %v", start, end, err)
			continue
		}
		result.ProcessedCount += len(batch)
		result.ExpiredCredits += batchExpired
	}

	log.Infof("[Expiration] users=%d processed=%d errors=%d expired_credits=%d",
		result.UsersCount, result.ProcessedCount, result.ErrorCount, result.ExpiredCredits)
	return result, nil
}
