// Package qa orchestrates question answering. It validates a question,
// resolves it to a canonical key through the similarity pipeline, checks
// that the model's manuals carry the section, queries the graph and maps
// every outcome to a response code with a canned message.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/query"
	"github.com/WessleyAI/manualkg/engine/similarity"
	"github.com/WessleyAI/manualkg/pkg/metrics"
)

// Matcher resolves question text to canonical keys.
type Matcher interface {
	Extract(ctx context.Context, req similarity.Request) (similarity.Result, error)
}

// Answerer answers a resolved question from the graph.
type Answerer interface {
	Resolve(ctx context.Context, r query.Resolved) (query.Answer, domain.ResponseCode, error)
}

// ManualFinder lists the manuals covering a model.
type ManualFinder interface {
	FindManuals(ctx context.Context, f graph.ManualFilter) ([]graph.ManualEntry, error)
}

// Options configures the service.
type Options struct {
	TopK    int
	Lang    string
	Timeout time.Duration
	// SectionRelations is the relation used for a match that carries none,
	// keyed by canonical section name.
	SectionRelations map[string]string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:    5,
		Lang:    "en",
		Timeout: 10 * time.Second,
		SectionRelations: map[string]string{
			"troubleshooting": "HAS_TROUBLESHOOTING_PROBLEM",
			"operation":       "HAS_OPERATION_SECTION",
			"specification":   "HAS_SPECIFICATION",
		},
	}
}

// Request is one question.
type Request struct {
	Question domain.Question `json:"question"`
	Lang     string          `json:"lang,omitempty"`
	TopK     int             `json:"top_k,omitempty"`
	L1Key    string          `json:"l1_key,omitempty"`
}

// Response is the outcome of Ask. Message is set for every code but SUCCESS.
type Response struct {
	Code    domain.ResponseCode `json:"code"`
	Message string              `json:"message,omitempty"`
	Tier    string              `json:"tier,omitempty"`
	Matches []similarity.Match  `json:"matches,omitempty"`
	Answer  *query.Answer       `json:"answer,omitempty"`
}

// Service is the QA orchestration service.
type Service struct {
	matcher  Matcher
	answerer Answerer
	manuals  ManualFinder
	opts     Options
	logger   *slog.Logger

	codes    map[domain.ResponseCode]*metrics.Counter
	duration *metrics.Histogram
}

// New creates a Service. manuals may be nil to skip the section check.
func New(matcher Matcher, answerer Answerer, manuals ManualFinder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SectionRelations == nil {
		opts.SectionRelations = DefaultOptions().SectionRelations
	}
	return &Service{matcher: matcher, answerer: answerer, manuals: manuals, opts: opts, logger: logger}
}

// Instrument registers one response counter per code on reg.
func (s *Service) Instrument(reg *metrics.Registry) {
	s.codes = make(map[domain.ResponseCode]*metrics.Counter)
	for _, c := range []domain.ResponseCode{
		domain.CodeSuccess, domain.CodeDataNotFound, domain.CodeSectionNotAvailable,
		domain.CodeQueryMatchingDataNotFound, domain.CodeInvalidRequest,
		domain.CodeUnsupportedQuery, domain.CodeInternalError,
	} {
		s.codes[c] = reg.Counter(metrics.WithLabels("manualkg_qa_responses_total", "code", string(c)), "QA responses by code")
	}
	s.duration = reg.Histogram("manualkg_qa_duration_seconds", "QA request latency", []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
}

// Ask answers one question. The response always carries a code; the error
// is non-nil only alongside INTERNAL_ERROR and is never meant for users.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	q := req.Question
	if s.duration != nil {
		defer s.duration.Since(time.Now())
	}
	s.logger.Info("qa ask start", "model", q.Model, "product", q.Product, "section", q.Section, "question_len", len(q.Text))

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	// 1. Validate.
	if err := domain.ValidateQuestion(q); err != nil {
		s.logger.Info("qa invalid request", "err", err)
		return s.respond(req, Response{Code: domain.CodeInvalidRequest}), nil
	}

	// 2. Resolve the canonical key.
	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}
	res, err := s.matcher.Extract(ctx, similarity.Request{
		Text:       q.Text,
		Section:    q.Section,
		Product:    q.Product,
		SubProduct: q.SubProduct,
		TopK:       topK,
		L1Key:      req.L1Key,
	})
	if err != nil {
		return s.respond(req, Response{Code: domain.CodeInternalError}), fmt.Errorf("qa: similarity: %w", err)
	}
	if !res.Supported {
		return s.respond(req, Response{Code: domain.CodeUnsupportedQuery}), nil
	}
	best, ok := res.Best()
	if !ok {
		return s.respond(req, Response{Code: domain.CodeQueryMatchingDataNotFound}), nil
	}
	resp := Response{Tier: res.Tier.String(), Matches: res.Matches}

	// 3. Check the model's manuals carry the section.
	if s.manuals != nil && q.Model != "" {
		code, err := s.sectionAvailable(ctx, q.Model, res.Scope.Section)
		if err != nil {
			resp.Code = domain.CodeInternalError
			return s.respond(req, resp), err
		}
		if code != domain.CodeSuccess {
			resp.Code = code
			return s.respond(req, resp), nil
		}
	}

	// 4. Query the graph.
	answer, code, err := s.answerer.Resolve(ctx, s.resolved(q, res.Scope.Product, res.Scope.Section, best))
	resp.Code = code
	if err != nil {
		if code == domain.CodeInternalError {
			return s.respond(req, resp), fmt.Errorf("qa: resolve: %w", err)
		}
		s.logger.Info("qa resolve rejected", "code", code, "err", err)
	}
	if code == domain.CodeSuccess {
		resp.Answer = &answer
	}
	s.logger.Info("qa ask done", "code", resp.Code, "key", best.Key, "tier", resp.Tier)
	return s.respond(req, resp), nil
}

// resolved maps the best match onto the query layer's input.
func (s *Service) resolved(q domain.Question, product, section string, m similarity.Match) query.Resolved {
	r := query.Resolved{
		Relation:        m.Relation,
		CommonKey:       m.Category,
		SpecificProblem: m.Key,
		Intent:          m.Intent,
		ProductType:     product,
		Model:           q.Model,
	}
	if r.Relation == "" {
		r.Relation = s.opts.SectionRelations[section]
		r.CommonKey = ""
	}
	return r
}

func (s *Service) sectionAvailable(ctx context.Context, model, section string) (domain.ResponseCode, error) {
	manuals, err := s.manuals.FindManuals(ctx, graph.ManualFilter{Model: model, Status: graph.ManualIngested})
	if err != nil {
		return domain.CodeInternalError, fmt.Errorf("qa: find manuals: %w", err)
	}
	if len(manuals) == 0 {
		return domain.CodeDataNotFound, nil
	}
	for _, m := range manuals {
		if slices.Contains(m.Sections, section) {
			return domain.CodeSuccess, nil
		}
	}
	return domain.CodeSectionNotAvailable, nil
}

func (s *Service) respond(req Request, resp Response) Response {
	lang := req.Lang
	if lang == "" {
		lang = s.opts.Lang
	}
	resp.Message = resp.Code.Message(lang)
	if c := s.codes[resp.Code]; c != nil {
		c.Inc()
	}
	return resp
}
