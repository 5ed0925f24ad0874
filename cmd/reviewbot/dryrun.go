package main

import (
	"github.com/dshills/reviewgraph/graph/model"
	"github.com/dshills/reviewgraph/internal/review"
)

// Canned replies used by --dry-run. Each passes its stage's quality check.
const (
	dryAnalysis = `{"issues":[{"type":"Bug","severity":"High","file":"calculator.py","location":"divide",` +
		`"description":"division by zero is not handled","impact":"runtime crash",` +
		`"recommendation":"guard the divisor"}],` +
		`"overall_assessment":"analysis found one issue worth fixing","improvement_priority":["divide"]}`

	dryGeneration = `{"improved_code":[{"file":"calculator.py","code":"def divide(a, b):\n    if b == 0:\n        raise ValueError(\"b must not be zero\")\n    return a / b"}],` +
		`"changes":[{"type":"Bug Fix","file":"calculator.py","description":"guard the divisor","line_range":"1-4","impact":"no crash"}],` +
		`"issues_addressed":[{"original_issue":"division by zero","solution":"raise ValueError"}],"summary":"guarded divide"}`

	dryIntegration = `{"integrated_code":[],"integration_notes":["matches the surrounding style"],` +
		`"style_adjustments":[],"compatibility_checks":["callers already handle ValueError"],"summary":"ready to merge"}`

	dryVerification = `{"verification_passed":true,"overall_quality_score":8,"correctness_check":"divide is guarded",` +
		`"performance_assessment":"unchanged","security_review":"no findings","warnings":[],` +
		`"recommendations":["add a unit test for divide"],"final_assessment":"approved","regression_risks":[]}`
)

// dryRunModels answers every stage with a canned reply and calls no
// provider.
func dryRunModels() (review.Models, map[review.Stage]string) {
	names := map[review.Stage]string{}
	for _, st := range review.Stages {
		names[st] = "dry-run"
	}
	return review.Models{
		Analysis:     model.NewMockChatModel(dryAnalysis),
		Generation:   model.NewMockChatModel(dryGeneration),
		Integration:  model.NewMockChatModel(dryIntegration),
		Verification: model.NewMockChatModel(dryVerification),
	}, names
}
