package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/retirement-leads-platform/internal/bookingstore"
	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
	"github.com/wolfman30/retirement-leads-platform/internal/otp"
	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

// BuildBookingStore selects the booking confirmation backend from BOOKING_STORE.
func BuildBookingStore(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, loadAWS AWSLoader, logger *logging.Logger) (bookingstore.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.BookingStore {
	case "", "memory":
		logger.Warn("booking store is in-memory; confirmations are not shared across instances")
		return bookingstore.NewMemoryStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: BOOKING_STORE=redis but redis is unavailable")
		}
		return bookingstore.NewRedisStore(redisClient, cfg.BookingTTL), nil
	case "dynamodb":
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: BOOKING_STORE=dynamodb requires aws config")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return bookingstore.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.BookingTable, cfg.BookingTTL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown BOOKING_STORE %q", cfg.BookingStore)
	}
}

// BuildCodeStore keeps OTP codes in Redis when available so any instance can
// check a code another instance sent.
func BuildCodeStore(redisClient *redis.Client) otp.CodeStore {
	if redisClient == nil {
		return otp.NewMemoryCodeStore(otp.SystemClock)
	}
	return otp.NewRedisCodeStore(redisClient)
}
