package service

import (
	"math"
	"strings"

	"github.com/noah-isme/erms-api/internal/config"
	"github.com/noah-isme/erms-api/internal/models"
)

// Grade remarks.
const (
	RemarkPassed     = "PASSED"
	RemarkFailed     = "FAILED"
	RemarkIncomplete = "INC"
)

// GradeQuiz scores answers against the quiz questions. An answer is correct when
// it equals the stored answer ignoring case and surrounding whitespace; missing
// answers are wrong.
func GradeQuiz(questions []models.Question, answers map[uint]string) (float64, []models.SubmissionAnswer) {
	var score float64
	graded := make([]models.SubmissionAnswer, 0, len(questions))
	for _, question := range questions {
		given, ok := answers[question.ID]
		given = strings.TrimSpace(given)
		correct := ok && given != "" && strings.EqualFold(given, strings.TrimSpace(question.CorrectAnswer))

		awarded := 0.0
		if correct {
			awarded = question.Points
			score += question.Points
		}
		graded = append(graded, models.SubmissionAnswer{
			QuestionID:    question.ID,
			Answer:        given,
			Correct:       correct,
			PointsAwarded: awarded,
		})
	}
	return score, graded
}

// GradeResult is a computed term grade.
type GradeResult struct {
	FinalGrade *float64
	Remarks    string
}

// ComputeGrade applies the term weights to the recorded scores. Any missing term
// makes the grade incomplete.
func ComputeGrade(scores map[string]float64, weights config.GradeWeights, passing float64) GradeResult {
	termWeights := map[string]float64{
		models.TermPrelim:  weights.Prelim,
		models.TermMidterm: weights.Midterm,
		models.TermFinal:   weights.Final,
	}

	var total float64
	for _, term := range models.Terms {
		score, ok := scores[term]
		if !ok {
			return GradeResult{Remarks: RemarkIncomplete}
		}
		total += score * termWeights[term]
	}

	final := roundTo(total, 2)
	remarks := RemarkFailed
	if final >= passing {
		remarks = RemarkPassed
	}
	return GradeResult{FinalGrade: &final, Remarks: remarks}
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
