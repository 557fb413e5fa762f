package workers

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/policy"
)

func testAppointment(id, center string) *engine.Appointment {
	return &engine.Appointment{
		ID:                id,
		VehicleID:         "VEH001",
		ServiceCenterID:   center,
		ServiceCenterName: center + " Service Center",
		Status:            AppointmentConfirmed,
	}
}

func TestCollectFeedback_Default(t *testing.T) {
	rec := &captureRecorder{}
	w := NewFeedback(nil, rec, zerolog.Nop(), WithClock(testNow))

	res, err := w.CollectFeedback(context.Background(), testAppointment("APT-1", "SC004"))
	if err != nil {
		t.Fatalf("CollectFeedback failed: %v", err)
	}

	if res.AverageRating != 4.5 {
		t.Errorf("Expected average 4.5 excluding the NPS score, got %v", res.AverageRating)
	}
	if res.Sentiment != SentimentVeryPositive {
		t.Errorf("Expected very_positive, got %s", res.Sentiment)
	}
	if res.NPSScore != 9 || res.NPSCategory != NPSPromoter {
		t.Errorf("Expected promoter with 9, got %s with %d", res.NPSCategory, res.NPSScore)
	}
	if len(res.Ratings) != 5 || res.Ratings["nps"] != 9 {
		t.Errorf("Unexpected ratings %v", res.Ratings)
	}
	if len(res.Comments) != 2 {
		t.Errorf("Expected 2 comments, got %v", res.Comments)
	}
	if res.AppointmentID != "APT-1" || !strings.HasPrefix(res.ID, "FB-") {
		t.Errorf("Unexpected identifiers %s / %s", res.ID, res.AppointmentID)
	}

	events := rec.list()
	if len(events) != 2 || events[0].action != policy.ActionFeedbackCollect || events[1].action != policy.ActionFeedbackAnalyze {
		t.Errorf("Unexpected recorded actions %+v", events)
	}
	if len(w.Results()) != 1 {
		t.Errorf("Expected one stored result, got %d", len(w.Results()))
	}
}

func TestCollectFeedback_NilAppointment(t *testing.T) {
	w := NewFeedback(nil, nil, zerolog.Nop())
	if _, err := w.CollectFeedback(context.Background(), nil); !faults.IsInvalidInput(err) {
		t.Errorf("Expected InvalidInput, got %v", err)
	}
}

func TestAnalyzeFeedback_InvalidAnswers(t *testing.T) {
	tests := []struct {
		name   string
		answer Answer
	}{
		{"unknown question", Answer{QuestionID: "Q42", Value: 3}},
		{"rating above scale", Answer{QuestionID: "Q1", Value: 7}},
		{"negative rating", Answer{QuestionID: "Q9", Value: -1}},
		{"non-numeric rating", Answer{QuestionID: "Q2", Value: "great"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnalyzeFeedback(SurveyQuestions, []Answer{tt.answer})
			if !faults.IsInvalidInput(err) {
				t.Errorf("Expected InvalidInput, got %v", err)
			}
		})
	}
}

func TestAnalyzeFeedback_NoRatings(t *testing.T) {
	res, err := AnalyzeFeedback(SurveyQuestions, []Answer{{QuestionID: "Q7", Value: "fine"}})
	if err != nil {
		t.Fatalf("AnalyzeFeedback failed: %v", err)
	}
	if res.AverageRating != 0 || res.Sentiment != SentimentVeryNegative || res.NPSCategory != "" {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestSentimentOf(t *testing.T) {
	tests := map[float64]string{
		5:    SentimentVeryPositive,
		4.5:  SentimentVeryPositive,
		4.49: SentimentPositive,
		4:    SentimentPositive,
		3:    SentimentNeutral,
		2.99: SentimentNegative,
		2:    SentimentNegative,
		1.5:  SentimentVeryNegative,
	}
	for avg, want := range tests {
		if got := SentimentOf(avg); got != want {
			t.Errorf("SentimentOf(%v) = %s, want %s", avg, got, want)
		}
	}
}

func TestNPSCategoryOf(t *testing.T) {
	tests := map[int]string{10: NPSPromoter, 9: NPSPromoter, 8: NPSPassive, 7: NPSPassive, 6: NPSDetractor, 0: NPSDetractor}
	for score, want := range tests {
		if got := NPSCategoryOf(score); got != want {
			t.Errorf("NPSCategoryOf(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestCenterSummary(t *testing.T) {
	ctx := context.Background()
	unhappy := ScriptedFeedback{
		{QuestionID: "Q1", Value: 2},
		{QuestionID: "Q2", Value: 2},
		{QuestionID: "Q3", Value: 2},
		{QuestionID: "Q4", Value: 2},
		{QuestionID: "Q9", Value: 3},
	}

	happy := NewFeedback(nil, nil, zerolog.Nop())
	if _, err := happy.CollectFeedback(ctx, testAppointment("APT-1", "SC004")); err != nil {
		t.Fatalf("CollectFeedback failed: %v", err)
	}
	res, err := AnalyzeFeedback(SurveyQuestions, unhappy)
	if err != nil {
		t.Fatalf("AnalyzeFeedback failed: %v", err)
	}
	happy.records = append(happy.records, feedbackRecord{result: *res, centerID: "SC004", centerName: "SC004 Service Center"})
	if _, err := happy.CollectFeedback(ctx, testAppointment("APT-3", "SC001")); err != nil {
		t.Fatalf("CollectFeedback failed: %v", err)
	}

	s := happy.CenterSummary("SC004")
	if s.TotalFeedback != 2 {
		t.Fatalf("Expected 2 feedback entries, got %d", s.TotalFeedback)
	}
	if s.AverageRating != 3.25 {
		t.Errorf("Expected average 3.25, got %v", s.AverageRating)
	}
	if s.NPS != 0 {
		t.Errorf("Expected NPS 0 with one promoter and one detractor, got %d", s.NPS)
	}
	if s.Sentiments[SentimentVeryPositive] != 1 || s.Sentiments[SentimentNegative] != 1 {
		t.Errorf("Unexpected sentiments %v", s.Sentiments)
	}

	if empty := happy.CenterSummary("SC999"); empty.TotalFeedback != 0 || empty.NPS != 0 {
		t.Errorf("Expected empty summary, got %+v", empty)
	}
}
