package async

import (
	"context"
	"time"
)

// Service is a long running background process. Start blocks until ctx is
// done or the service fails.
type Service interface {
	Start(ctx context.Context, interval time.Duration) error
}
