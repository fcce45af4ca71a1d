package blob

import (
	"context"
	"fmt"
)

// Config selects and configures a driver.
type Config struct {
	Driver    Driver
	FSRoot    string
	PublicURL string
	S3        S3Config
}

// Open returns the Store selected by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.PublicURL)
	case DriverS3:
		s3cfg := cfg.S3
		if s3cfg.PublicURL == "" {
			s3cfg.PublicURL = cfg.PublicURL
		}
		return NewS3(ctx, s3cfg)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
