// Package nlp is an HTTP client for the semantic-role-labeling and
// constituency-parsing service used to enrich cause and question sentences.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/WessleyAI/manualkg/pkg/fn"
	"github.com/WessleyAI/manualkg/pkg/resilience"
	"golang.org/x/time/rate"
)

// CodeSuccess is the service's success response code.
const CodeSuccess = "SUCCESS"

// ErrNotSuccess is returned when the service answers with a non-success code.
var ErrNotSuccess = errors.New("nlp: non-success response")

// SRL holds the semantic-role buckets of a sentence.
type SRL struct {
	Cause   []string `json:"cause"`
	Temp    []string `json:"temp"`
	Purpose []string `json:"purpose"`
}

// Constituents holds noun and verb phrases from the constituency parse.
type Constituents struct {
	NP []string `json:"NP"`
	VB []string `json:"VB"`
}

// Data is the responseData payload.
type Data struct {
	SRL  SRL          `json:"srl"`
	Cons Constituents `json:"cons_parser"`
}

// Response is the service envelope.
type Response struct {
	Code string `json:"responseCode"`
	Data Data   `json:"responseData"`
}

type request struct {
	Sentence string `json:"sentence"`
}

// Options configures the client.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Burst    int
	Breaker  resilience.BreakerOpts
}

// DefaultOptions pace calls at 20/s and trip after 5 consecutive failures.
var DefaultOptions = Options{
	Timeout:  3 * time.Second,
	Interval: 50 * time.Millisecond,
	Burst:    5,
	Breaker:  resilience.DefaultBreakerOpts,
}

// Client calls POST {baseURL}/srl_cons.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewClient creates a client. Zero option fields take DefaultOptions values.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions.Interval
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultOptions.Burst
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(opts.Interval), opts.Burst),
		breaker: resilience.NewBreaker(opts.Breaker),
	}
}

// SrlCons parses sentence. A non-success response code yields ErrNotSuccess.
func (c *Client) SrlCons(ctx context.Context, sentence string) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("nlp: wait: %w", err)
	}
	r := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[Response] {
		return fn.FromPair(c.post(ctx, sentence))
	})
	return r.Unwrap()
}

func (c *Client) post(ctx context.Context, sentence string) (Response, error) {
	body, err := json.Marshal(request{Sentence: sentence})
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/srl_cons", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("nlp: srl_cons: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("nlp: srl_cons: status %d", resp.StatusCode)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("nlp: decode: %w", err)
	}
	if out.Code != CodeSuccess {
		return out, fmt.Errorf("%w: %s", ErrNotSuccess, out.Code)
	}
	return out, nil
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }
