package statistics

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
)

const (
	CacheKeyUsers       = "statistics:users:total"
	CacheKeyCirculation = "statistics:credits:circulation"
	CacheExpiration     = 30 * time.Minute
)

// StatisticsData is the operational snapshot served by the internal stats
// endpoint.
type StatisticsData struct {
	TotalUsers           int64              `json:"total_users"`
	CreditsInCirculation int64              `json:"credits_in_circulation"`
	Today                DailyStatisticData `json:"today"`
}

// DailyStatisticData mirrors one credit_daily_stats row.
type DailyStatisticData struct {
	CreditsGranted    int64 `json:"credits_granted"`
	CreditsConsumed   int64 `json:"credits_consumed"`
	CreditsExpired    int64 `json:"credits_expired"`
	WebhooksProcessed int64 `json:"webhooks_processed"`
	WebhooksSkipped   int64 `json:"webhooks_skipped"`
	WebhooksFailed    int64 `json:"webhooks_failed"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached aggregates are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached aggregates when stale.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recomputes the aggregates and stores them in cache.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting users: %v", err)
		return err
	}

	// Sum of the cached balances, not of open lots: current_credits is
	// what consumption decisions read.
	var circulation int64
	if err := db.Model(&models.UserCredit{}).
		Select("COALESCE(SUM(current_credits), 0)").Scan(&circulation).Error; err != nil {
		log.Printf("Error summing credit balances: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching user count: %v", err)
		return err
	}
	if err := cache.Set(CacheKeyCirculation, strconv.FormatInt(circulation, 10), CacheExpiration); err != nil {
		log.Printf("Error caching circulation: %v", err)
		return err
	}
	return nil
}

// GetTotalUsers returns the user count from cache or database.
func GetTotalUsers() int64 {
	val, err := cache.Get(CacheKeyUsers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting users: %v", err)
			return 0
		}
		if err := cache.Set(CacheKeyUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching user count: %v", err)
		}
		return count
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return count
}

// GetCreditsInCirculation returns the balance sum from cache or database.
func GetCreditsInCirculation() int64 {
	val, err := cache.Get(CacheKeyCirculation)
	if err != nil {
		var sum int64
		db := database.GetDB()
		if err := db.Model(&models.UserCredit{}).
			Select("COALESCE(SUM(current_credits), 0)").Scan(&sum).Error; err != nil {
			log.Printf("Error summing credit balances: %v", err)
			return 0
		}
		if err := cache.Set(CacheKeyCirculation, strconv.FormatInt(sum, 10), CacheExpiration); err != nil {
			log.Printf("Error caching circulation: %v", err)
		}
		return sum
	}

	sum, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return sum
}

// GetTodayStats returns today's counter row. The row changes with every
// counter flush, so it is read from the database instead of the cache.
func GetTodayStats() DailyStatisticData {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var row models.CreditDailyStat
	db := database.GetDB()
	if err := db.Where("stat_date = ?", today).First(&row).Error; err != nil {
		// No flush happened yet today.
		return DailyStatisticData{}
	}
	return DailyStatisticData{
		CreditsGranted:    row.CreditsGranted,
		CreditsConsumed:   row.CreditsConsumed,
		CreditsExpired:    row.CreditsExpired,
		WebhooksProcessed: row.WebhooksProcessed,
		WebhooksSkipped:   row.WebhooksSkipped,
		WebhooksFailed:    row.WebhooksFailed,
	}
}

// GetStatisticsData returns the full snapshot, refreshing stale caches.
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:           GetTotalUsers(),
		CreditsInCirculation: GetCreditsInCirculation(),
		Today:                GetTodayStats(),
	}
}
