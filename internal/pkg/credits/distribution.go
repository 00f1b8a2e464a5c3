package credits

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DefaultDistributionBatchSize bounds how many users are loaded per page so
// a single run never holds the users table for long.
const DefaultDistributionBatchSize = 100

// GrantCommand is one periodic grant the distribution engine wants to issue.
type GrantCommand struct {
	UserID      uint   `validate:"required"`
	Type        string `validate:"required"`
	Amount      int64  `validate:"required,gt=0"`
	Description string `validate:"required"`
	ExpireDays  int    `validate:"gte=0"`
	PeriodKey   int    `validate:"gte=0"`
}

// CohortPlanner partitions a user (with their current active payment, if
// any) into grant commands for the reference date. The billing package
// provides the production implementation.
type CohortPlanner interface {
	PlanGrants(row repository.UserBillingRow, ref time.Time) []GrantCommand
}

// DistributionResult is the aggregate summary of one distribution run,
// intended for operational logging.
type DistributionResult struct {
	UsersCount int      `json:"users_count"`
	Total      int      `json:"total"`
	Processed  int      `json:"processed"`
	Skipped    int      `json:"skipped"`
	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors,omitempty"`
}

// DistributionEngine computes and executes the periodic credit grants for
// the whole user population. Commands are evaluated independently: one
// failing user never aborts its siblings.
type DistributionEngine struct {
	svc       *Service
	payments  repository.PaymentRepository
	planner   CohortPlanner
	batchSize int
	validate  *validator.Validate
}

// NewDistributionEngine creates a distribution engine. batchSize <= 0 falls
// back to the default of 100.
func NewDistributionEngine(svc *Service, payments repository.PaymentRepository, planner CohortPlanner, batchSize int) *DistributionEngine {
	if batchSize <= 0 {
		batchSize = DefaultDistributionBatchSize
	}
	return &DistributionEngine{
		svc:       svc,
		payments:  payments,
		planner:   planner,
		batchSize: batchSize,
		validate:  validator.New(),
	}
}

// DistributeCreditsToAllUsers runs one distribution cycle for the given
// reference date and returns the aggregate result.
func (e *DistributionEngine) DistributeCreditsToAllUsers(ref time.Time) (*DistributionResult, error) {
	result := &DistributionResult{}

	usersCount, err := e.payments.CountUsers()
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	result.UsersCount = int(usersCount)

	offset := 0
	for {
		rows, err := e.payments.ListUserBillingRows(offset, e.batchSize)
		if err != nil {
			return nil, fmt.Errorf("list user billing rows at offset %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			for _, cmd := range e.planner.PlanGrants(row, ref) {
				result.Total++
				granted, err := e.executeCommand(cmd, ref)
				switch {
				case err != nil:
					result.ErrorCount++
					result.Errors = append(result.Errors, fmt.Sprintf("user %d type %s: %v", cmd.UserID, cmd.Type, err))
					log.Errorf("[Distribution] grant failed for user %d type %s: %v", cmd.UserID, cmd.Type, err)
				case granted:
					result.Processed++
				default:
					result.Skipped++
				}
			}
		}

		offset += len(rows)
	}

	log.Infof("[Distribution] ref=%s users=%d total=%d processed=%d skipped=%d errors=%d",
		ref.Format("2006-01-02"), result.UsersCount, result.Total, result.Processed, result.Skipped, result.ErrorCount)
	return result, nil
}

// executeCommand runs the idempotency check and the grant inside one
// transaction. The check only filters the common replay case; when two
// concurrent runs both pass it, the unique period index rejects the second
// insert and the command counts as skipped.
func (e *DistributionEngine) executeCommand(cmd GrantCommand, ref time.Time) (bool, error) {
	if err := e.validate.Struct(cmd); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	granted := false
	err := e.svc.inTx(nil, func(tx *gorm.DB) error {
		due, err := e.svc.CanAddCreditsByType(cmd.UserID, cmd.Type, cmd.PeriodKey, ref, tx)
		if err != nil {
			return err
		}
		if !due {
			return nil
		}
		if err := e.svc.AddCredits(AddCreditsInput{
			UserID:      cmd.UserID,
			Amount:      cmd.Amount,
			Type:        cmd.Type,
			Description: cmd.Description,
			ExpireDays:  cmd.ExpireDays,
			PeriodKey:   cmd.PeriodKey,
		}, tx); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil && errors.Is(err, ErrDuplicatePeriodGrant) {
		return false, nil
	}
	return granted, err
}
