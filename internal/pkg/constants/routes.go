package constants

// Static route constants
const (
	APIv1Route = "/api/v1"

	WebhookStripeRoute = "/webhook/stripe"
	WebhookCreemRoute  = "/webhook/creem"

	InternalJobsRoute       = "/internal/jobs"
	InternalDistributeRoute = "/distribute"
	InternalExpireRoute     = "/expire"
	InternalStatsRoute      = "/internal/stats"
)
