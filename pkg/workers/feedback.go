package workers

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/policy"
)

// Question kinds.
const (
	QuestionRating  = "rating"
	QuestionBoolean = "boolean"
	QuestionText    = "text"
)

// Sentiment and NPS categories.
const (
	SentimentVeryPositive = "very_positive"
	SentimentPositive     = "positive"
	SentimentNeutral      = "neutral"
	SentimentNegative     = "negative"
	SentimentVeryNegative = "very_negative"

	NPSPromoter  = "promoter"
	NPSPassive   = "passive"
	NPSDetractor = "detractor"
)

const npsCategory = "nps"

// Question is one item of the post-service survey.
type Question struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	Scale    int    `json:"scale,omitempty"`
	Category string `json:"category"`
}

// SurveyQuestions is the post-service survey.
var SurveyQuestions = []Question{
	{ID: "Q1", Kind: QuestionRating, Scale: 5, Category: "overall_satisfaction", Text: "How satisfied are you with the overall service experience?"},
	{ID: "Q2", Kind: QuestionRating, Scale: 5, Category: "service_quality", Text: "How would you rate the quality of work performed on your vehicle?"},
	{ID: "Q3", Kind: QuestionRating, Scale: 5, Category: "communication", Text: "How satisfied are you with the communication from our service team?"},
	{ID: "Q4", Kind: QuestionRating, Scale: 5, Category: "facility", Text: "How would you rate the cleanliness and professionalism of our service center?"},
	{ID: "Q5", Kind: QuestionBoolean, Category: "timeliness", Text: "Was the service completed within the estimated time?"},
	{ID: "Q6", Kind: QuestionBoolean, Category: "cost_accuracy", Text: "Did the final cost match the initial estimate?"},
	{ID: "Q7", Kind: QuestionText, Category: "positive_feedback", Text: "What did you like most about your service experience?"},
	{ID: "Q8", Kind: QuestionText, Category: "improvement_suggestions", Text: "What areas do you think we could improve?"},
	{ID: "Q9", Kind: QuestionRating, Scale: 10, Category: npsCategory, Text: "How likely are you to recommend our service center to others?"},
}

// Answer is a customer's response to one question. Value is a number for
// rating questions, a bool for boolean questions and a string for text.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// FeedbackSource obtains survey answers for a completed appointment.
type FeedbackSource interface {
	Answers(ctx context.Context, apt *engine.Appointment, questions []Question) ([]Answer, error)
}

// ScriptedFeedback answers every survey the same way.
type ScriptedFeedback []Answer

// DefaultFeedback is a satisfied customer.
var DefaultFeedback = ScriptedFeedback{
	{QuestionID: "Q1", Value: 5},
	{QuestionID: "Q2", Value: 4},
	{QuestionID: "Q3", Value: 5},
	{QuestionID: "Q4", Value: 4},
	{QuestionID: "Q5", Value: true},
	{QuestionID: "Q6", Value: true},
	{QuestionID: "Q7", Value: "Great service, very professional team"},
	{QuestionID: "Q8", Value: "Waiting area could be improved"},
	{QuestionID: "Q9", Value: 9},
}

// Answers implements FeedbackSource.
func (s ScriptedFeedback) Answers(context.Context, *engine.Appointment, []Question) ([]Answer, error) {
	return append([]Answer(nil), s...), nil
}

// CenterFeedback summarizes the feedback collected for one service center.
type CenterFeedback struct {
	ServiceCenterID   string         `json:"service_center_id"`
	ServiceCenterName string         `json:"service_center_name,omitempty"`
	TotalFeedback     int            `json:"total_feedback"`
	AverageRating     float64        `json:"average_rating"`
	NPS               int            `json:"nps"`
	Sentiments        map[string]int `json:"sentiments"`
}

type feedbackRecord struct {
	result     engine.FeedbackResult
	centerID   string
	centerName string
}

// Feedback runs the post-service survey.
type Feedback struct {
	actor
	source FeedbackSource

	mu      sync.RWMutex
	records []feedbackRecord
}

var _ engine.FeedbackWorker = (*Feedback)(nil)

// NewFeedback creates the feedback worker. A nil source uses DefaultFeedback.
func NewFeedback(source FeedbackSource, recorder Recorder, logger zerolog.Logger, opts ...Option) *Feedback {
	if source == nil {
		source = DefaultFeedback
	}
	return &Feedback{
		actor:  newActor(policy.ActorFeedback, recorder, logger, opts),
		source: source,
	}
}

// DataDomains implements engine.Worker.
func (w *Feedback) DataDomains() []string {
	return []string{policy.DataAppointments, policy.DataCustomers, policy.DataFeedback}
}

// CollectFeedback implements engine.FeedbackWorker.
func (w *Feedback) CollectFeedback(ctx context.Context, apt *engine.Appointment) (*engine.FeedbackResult, error) {
	if apt == nil {
		return nil, faults.NewInvalidInputError("appointment is required", nil).WithOperation("collect_feedback")
	}

	w.record(ctx, policy.ActionFeedbackCollect, policy.DataFeedback, map[string]string{"appointmentId": apt.ID})
	answers, err := w.source.Answers(ctx, apt, SurveyQuestions)
	if err != nil {
		return nil, fmt.Errorf("failed to collect survey answers: %w", err)
	}

	w.record(ctx, policy.ActionFeedbackAnalyze, policy.DataFeedback, nil)
	res, err := AnalyzeFeedback(SurveyQuestions, answers)
	if err != nil {
		return nil, err
	}
	res.ID = "FB-" + uuid.New().String()
	res.AppointmentID = apt.ID
	res.CollectedAt = w.clock().UTC()

	w.mu.Lock()
	w.records = append(w.records, feedbackRecord{result: *res, centerID: apt.ServiceCenterID, centerName: apt.ServiceCenterName})
	w.mu.Unlock()

	w.logger.Debug().
		Str("feedback_id", res.ID).
		Float64("average_rating", res.AverageRating).
		Str("sentiment", res.Sentiment).
		Int("nps", res.NPSScore).
		Msg("Feedback analyzed")
	return res, nil
}

// AnalyzeFeedback scores a set of answers. The average covers the rating
// questions other than the NPS question, rounded to two decimals.
func AnalyzeFeedback(questions []Question, answers []Answer) (*engine.FeedbackResult, error) {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	res := &engine.FeedbackResult{Ratings: make(map[string]float64)}
	sum, n := 0.0, 0
	nps := -1
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return nil, faults.NewInvalidInputError("unknown survey question", nil).WithResource(a.QuestionID)
		}
		switch q.Kind {
		case QuestionRating:
			v, ok := number(a.Value)
			if !ok {
				return nil, faults.NewInvalidInputError("rating answer must be a number", nil).WithResource(q.ID)
			}
			if v < 0 || (q.Scale > 0 && v > float64(q.Scale)) {
				return nil, faults.NewInvalidInputError("rating answer out of range", nil).
					WithResource(q.ID).
					WithDetail("value", v)
			}
			res.Ratings[q.Category] = v
			if q.Category == npsCategory {
				nps = int(v)
				continue
			}
			sum += v
			n++
		case QuestionText:
			if s, ok := a.Value.(string); ok && s != "" {
				res.Comments = append(res.Comments, s)
			}
		}
	}

	if n > 0 {
		res.AverageRating = math.Round(sum/float64(n)*100) / 100
	}
	res.Sentiment = SentimentOf(res.AverageRating)
	if nps >= 0 {
		res.NPSScore = nps
		res.NPSCategory = NPSCategoryOf(nps)
	}
	return res, nil
}

// SentimentOf buckets an average rating on a five point scale.
func SentimentOf(avg float64) string {
	switch {
	case avg >= 4.5:
		return SentimentVeryPositive
	case avg >= 4:
		return SentimentPositive
	case avg >= 3:
		return SentimentNeutral
	case avg >= 2:
		return SentimentNegative
	default:
		return SentimentVeryNegative
	}
}

// NPSCategoryOf classifies a 0-10 recommendation score.
func NPSCategoryOf(score int) string {
	switch {
	case score >= 9:
		return NPSPromoter
	case score <= 6:
		return NPSDetractor
	default:
		return NPSPassive
	}
}

// CenterSummary aggregates the collected feedback for one service center.
// NPS is the promoter share minus the detractor share, as a whole percentage.
func (w *Feedback) CenterSummary(centerID string) CenterFeedback {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := CenterFeedback{ServiceCenterID: centerID, Sentiments: make(map[string]int)}
	sum := 0.0
	scored, promoters, detractors := 0, 0, 0
	for _, r := range w.records {
		if r.centerID != centerID {
			continue
		}
		out.ServiceCenterName = r.centerName
		out.TotalFeedback++
		sum += r.result.AverageRating
		out.Sentiments[r.result.Sentiment]++
		switch r.result.NPSCategory {
		case NPSPromoter:
			promoters++
		case NPSDetractor:
			detractors++
		}
		if r.result.NPSCategory != "" {
			scored++
		}
	}
	if out.TotalFeedback > 0 {
		out.AverageRating = math.Round(sum/float64(out.TotalFeedback)*100) / 100
	}
	if scored > 0 {
		out.NPS = int(math.Round(float64(promoters-detractors) / float64(scored) * 100))
	}
	return out
}

// Results returns every collected feedback result, oldest first.
func (w *Feedback) Results() []engine.FeedbackResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]engine.FeedbackResult, len(w.records))
	for i, r := range w.records {
		out[i] = r.result
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
