package oracle

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"newsmarket/internal/models"
)

// FailSafeRationale marks a verdict produced by the fail-safe path rather
// than the oracle itself.
const FailSafeRationale = "unparseable-response"

// Verdict is the normalized relevance answer for one (market, news) pair.
type Verdict struct {
	Relevance string
	Rationale string
}

func (v Verdict) Relevant() bool { return v.Relevance == models.RelevanceRelevant }

// Judge asks the relevance oracle whether a news article has direct impact
// on a market question. The oracle is treated as a noisy binary classifier:
// anything other than a clean yes/no, including transport failure after the
// retry budget, degrades to NotRelevant. Judge never returns an error.
type Judge struct {
	api    chatAPI
	model  string
	policy RetryPolicy
	logger *zap.Logger
}

func NewJudge(api chatAPI, model string, policy RetryPolicy, logger *zap.Logger) *Judge {
	return &Judge{api: api, model: model, policy: policy, logger: nopLogger(logger)}
}

const judgeSystemPrompt = `You are a strict financial analyst. You will be given a news article and a prediction market question.
Your task is to determine if the news article will have any DIRECT impact on the market outcome.

IMPORTANT: Be very strict. Most news will NOT impact most markets.

Examples of IMPACT (yes):
- News: "Tesla reports record quarterly deliveries" + Market: "Will Tesla stock exceed $200?" = IMPACT (yes) - same company
- News: "Fed cuts interest rates" + Market: "Will Fed cut rates again?" = IMPACT (yes) - same topic

Examples of NO IMPACT (no):
- News: "NASA launches Mars rover" + Market: "Will Bitcoin price exceed $100k?" = NO IMPACT (no) - completely unrelated
- News: "Apple releases new iPhone" + Market: "Will Google stock rise?" = NO IMPACT (no) - different companies

STRICT RULES:
- Same company/person/organization = IMPACT (yes)
- Same specific topic/event = IMPACT (yes)
- Different companies = NO IMPACT (no)
- Different topics = NO IMPACT (no)
- Vague connections = NO IMPACT (no)

Default to NO IMPACT unless there is a clear, direct connection.
Only answer "yes" or "no".`

// Judge evaluates one candidate pair. marketText and newsText are the raw
// fingerprint texts of the two sides.
func (j *Judge) Judge(ctx context.Context, marketText, newsText string) Verdict {
	userPrompt := fmt.Sprintf(
		"News: %s\n\nMarket: %s\n\nDoes this news have DIRECT impact on this specific market? Be strict. Answer yes only if clearly connected, otherwise no:",
		strings.TrimSpace(newsText), strings.TrimSpace(marketText),
	)

	var raw string
	err := j.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := j.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: j.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: 0,
		})
		if err != nil {
			return err
		}
		raw = completionText(resp)
		return nil
	})
	if err != nil {
		j.logger.Warn("relevance oracle unavailable, defaulting to not relevant", zap.Error(err))
		return Verdict{Relevance: models.RelevanceNotRelevant, Rationale: FailSafeRationale}
	}

	switch normalizeAnswer(raw) {
	case "yes":
		return Verdict{Relevance: models.RelevanceRelevant, Rationale: strings.TrimSpace(raw)}
	case "no":
		return Verdict{Relevance: models.RelevanceNotRelevant, Rationale: strings.TrimSpace(raw)}
	default:
		j.logger.Warn("relevance oracle returned unparseable answer", zap.String("raw", raw))
		return Verdict{Relevance: models.RelevanceNotRelevant, Rationale: FailSafeRationale}
	}
}

// normalizeAnswer lowercases the response and strips everything except
// letters, digits and spaces before matching yes/no.
func normalizeAnswer(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
