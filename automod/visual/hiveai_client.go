package visual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/goccy/go-json"
	"github.com/hearth-social/warden/util"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sony/gobreaker/v2"
	"github.com/spaolacci/murmur3"
	"golang.org/x/time/rate"
)

const hiveSyncEndpoint = "https://api.thehive.ai/api/v2/task/sync"

type HiveAIClient struct {
	Client   *http.Client
	ApiToken string
	Endpoint string
	Logger   *slog.Logger

	cfg HiveAIConfig
	// limiter and breaker per API token
	guards *xsync.MapOf[string, *tokenGuard]
}

type tokenGuard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[float64]
}

// schema: https://docs.thehive.ai/reference/classification
type HiveAIResp struct {
	Status []HiveAIResp_Status `json:"status"`
}

type HiveAIResp_Status struct {
	Response HiveAIResp_Response `json:"response"`
}

type HiveAIResp_Response struct {
	Output []HiveAIResp_Out `json:"output"`
}

type HiveAIResp_Out struct {
	Time    float64            `json:"time"`
	Classes []HiveAIResp_Class `json:"classes"`
}

type HiveAIResp_Class struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

type HiveAIConfig struct {
	ApiToken string
	Endpoint string
	// requests per second allowed out to the service; excess requests fail immediately
	RateLimit float64
	// consecutive failures before the breaker opens
	TripAfter uint32
	// how long the breaker stays open before probing again
	CoolDown time.Duration
}

func NewHiveAIClient(cfg HiveAIConfig) *HiveAIClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = hiveSyncEndpoint
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &HiveAIClient{
		Client:   util.RetryingHTTPClient(1, 10*time.Second),
		ApiToken: cfg.ApiToken,
		Endpoint: cfg.Endpoint,
		Logger:   slog.Default().With("component", "hiveai"),
		cfg:      cfg,
		guards:   xsync.NewMapOf[string, *tokenGuard](),
	}
}

// short, non-reversible label for a token in logs
func tokenID(token string) string {
	return fmt.Sprintf("%08x", murmur3.Sum32([]byte(token)))
}

func (hal *HiveAIClient) guardFor(token string) *tokenGuard {
	g, _ := hal.guards.LoadOrCompute(token, func() *tokenGuard {
		id := tokenID(token)
		return &tokenGuard{
			limiter: rate.NewLimiter(rate.Limit(hal.cfg.RateLimit), int(hal.cfg.RateLimit)+1),
			breaker: gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
				Name:        "hiveai-" + id,
				MaxRequests: 1,
				Timeout:     hal.cfg.CoolDown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= hal.cfg.TripAfter
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					hal.Logger.Warn("classifier circuit breaker state change", "token", id, "from", from.String(), "to", to.String())
					hiveBreakerTransitions.WithLabelValues(to.String()).Inc()
				},
			}),
		}
	})
	return g
}

// Classes which count towards the NSFW score. Covers explicit activity, suggestive content, and nudity.
//
// hive docs/definitions: https://docs.thehive.ai/docs/sexual-content
var nsfwClasses = map[string]bool{
	"yes_sexual_activity":        true,
	"animal_genitalia_and_human": true,
	"yes_realistic_nsfw":         true,
	"general_nsfw":               true,
	"animated_animal_genitalia":  true,
	"yes_sexual_intent":          true,
	"yes_sex_toy":                true,
	"yes_male_nudity":            true,
	"yes_female_nudity":          true,
	"yes_undressed":              true,
}

// Highest score across NSFW classes in every output frame.
func (resp *HiveAIResp) NSFWScore() float64 {
	best := 0.0
	for _, status := range resp.Status {
		for _, out := range status.Response.Output {
			for _, cls := range out.Classes {
				if nsfwClasses[cls.Class] && cls.Score > best {
					best = cls.Score
				}
			}
		}
	}
	return best
}

func (hal *HiveAIClient) Score(ctx context.Context, imageURL, apiKey string) (float64, error) {
	token := apiKey
	if token == "" {
		token = hal.ApiToken
	}
	if token == "" {
		return 0, fmt.Errorf("%w: no API token configured", ErrServiceUnavailable)
	}
	guard := hal.guardFor(token)
	if !guard.limiter.Allow() {
		hiveAPICount.WithLabelValues("ratelimited").Inc()
		return 0, fmt.Errorf("%w: local rate limit", ErrServiceUnavailable)
	}

	score, err := guard.breaker.Execute(func() (float64, error) {
		return hal.classify(ctx, imageURL, token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		hiveAPICount.WithLabelValues("breaker").Inc()
		return 0, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if err != nil {
		return 0, err
	}
	return score, nil
}

func (hal *HiveAIClient) classify(ctx context.Context, imageURL, token string) (float64, error) {
	hal.Logger.Debug("sending image to Hive AI", "url", imageURL)

	form := url.Values{}
	form.Set("url", imageURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hal.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		hiveAPIDuration.Observe(duration.Seconds())
	}()

	req.Header.Set("Authorization", fmt.Sprintf("Token %s", token))
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "warden/"+versioninfo.Short())

	res, err := hal.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: HiveAI request failed: %w", ErrServiceUnavailable, err)
	}
	defer res.Body.Close()

	hiveAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != 200 {
		return 0, fmt.Errorf("%w: HiveAI request failed statusCode=%d", ErrServiceUnavailable, res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read HiveAI resp body: %w", ErrServiceUnavailable, err)
	}

	var respObj HiveAIResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return 0, fmt.Errorf("%w: failed to parse HiveAI resp JSON: %w", ErrServiceUnavailable, err)
	}
	score := respObj.NSFWScore()
	hal.Logger.Debug("hive-ai-response", "url", imageURL, "score", score)
	return score, nil
}
