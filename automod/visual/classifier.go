// Image classification adapter: submits attachment URLs to an external NSFW classifier and returns a confidence score.
package visual

import (
	"context"
	"errors"
)

// The classifier could not produce a score (network failure, non-200 response, open circuit breaker, or local rate limit). Callers treat this as "no verdict".
var ErrServiceUnavailable = errors.New("image classifier unavailable")

type Classifier interface {
	// Confidence in [0,1] that the image is NSFW. apiKey overrides the client's default token when non-empty.
	Score(ctx context.Context, imageURL, apiKey string) (float64, error)
}
