package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/reviewgraph/graph"
)

// MaxStageRetries bounds the retries of a stage whose reply fails its
// quality check. Past it the stage is marked failed and the run continues.
const MaxStageRetries = 3

// Minimum reply lengths accepted by the quality checks.
const (
	minAnalysisLength   = 100
	minGenerationLength = 50
	minAnalysisScore    = 0.5
)

var (
	analysisKeywords     = []string{"issues", "recommendation", "analysis"}
	codeIndicators       = []string{"def ", "class ", "func ", "function", "import", "return", "{", "}"}
	verificationKeywords = []string{"verified", "passed", "approved", "quality"}
)

// retryName is the handler and counter prefix for each stage.
var retryName = map[Stage]string{
	StageAnalysis:     "analysis",
	StageGeneration:   "generation",
	StageIntegration:  "integration",
	StageVerification: "verification",
}

func response(data map[string]any, st Stage) string {
	s, _ := data[graph.ResponseKey(string(st))].(string)
	return s
}

func retryCountKey(st Stage) string { return retryName[st] + "_retry_count" }
func failedKey(st Stage) string     { return retryName[st] + "_failed" }
func retryHintKey(st Stage) string  { return retryName[st] + "_retry_hint" }

func flag(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func intValue(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// AnalysisScore is the share of the expected analysis topics mentioned in
// resp.
func AnalysisScore(resp string) float64 {
	lower := strings.ToLower(resp)
	found := 0
	for _, kw := range analysisKeywords {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	return float64(found) / float64(len(analysisKeywords))
}

// codeIndicatorCount counts distinct code-like tokens in resp.
func codeIndicatorCount(resp string) int {
	n := 0
	for _, ind := range codeIndicators {
		if strings.Contains(resp, ind) {
			n++
		}
	}
	return n
}

// PipelineSucceeded reads the verification reply. An explicit
// verification_passed field decides; otherwise any success keyword does.
func PipelineSucceeded(resp string) bool {
	if v, ok := decodeStage[Verification](resp); ok && v.VerificationPassed != nil {
		return *v.VerificationPassed
	}
	lower := strings.ToLower(resp)
	for _, kw := range verificationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// qualityGate passes when at least one retrieved file has content.
func qualityGate(data map[string]any) bool {
	files, _ := data[keyCodeFiles].([]SourceFile)
	return len(files) > 0
}

func analysisCheck(data map[string]any) bool {
	if flag(data, failedKey(StageAnalysis)) {
		return true
	}
	resp := response(data, StageAnalysis)
	return len(resp) >= minAnalysisLength && AnalysisScore(resp) >= minAnalysisScore
}

func generationCheck(data map[string]any) bool {
	if flag(data, failedKey(StageGeneration)) {
		return true
	}
	resp := response(data, StageGeneration)
	return len(resp) >= minGenerationLength && codeIndicatorCount(resp) >= 2
}

func integrationCheck(data map[string]any) bool {
	return flag(data, failedKey(StageIntegration)) || strings.TrimSpace(response(data, StageIntegration)) != ""
}

func finalCheck(data map[string]any) bool {
	return flag(data, failedKey(StageVerification)) || strings.TrimSpace(response(data, StageVerification)) != ""
}

// retryHandler counts re-runs of st. Past MaxStageRetries it marks the
// stage failed so its quality check lets the run continue.
func retryHandler(st Stage, logger *slog.Logger) graph.TransformFunc {
	return func(_ context.Context, data map[string]any) (map[string]any, error) {
		count := intValue(data, retryCountKey(st)) + 1
		out := map[string]any{retryCountKey(st): count}
		if count > MaxStageRetries {
			logger.Error("stage retry limit exceeded", "stage", st, "retries", count-1)
			out[failedKey(st)] = true
			return out, nil
		}
		logger.Info("retrying stage", "stage", st, "attempt", count)
		out[retryHintKey(st)] = fmt.Sprintf(
			"Retry %d of %d: the previous reply did not pass the quality check. Answer completely in the requested JSON format.",
			count, MaxStageRetries)
		return out, nil
	}
}
