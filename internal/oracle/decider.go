package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"newsmarket/internal/models"
)

// MarketContext is the enriched market snapshot handed to the decision
// oracle alongside the relevant articles.
type MarketContext struct {
	MarketID         string        `json:"marketId"`
	Question         string        `json:"question"`
	Description      string        `json:"description"`
	EndDate          string        `json:"endDate"`
	CurrentDate      string        `json:"currentDate"`
	TimeToExpiryDays float64       `json:"timeToExpiryDays"`
	Spread           float64       `json:"spread"`
	Extremeness      float64       `json:"extremeness"`
	PriceSum         float64       `json:"priceSum"`
	Volume24h        float64       `json:"volume24h"`
	OutcomePairs     []OutcomePair `json:"outcomePairs"`
	RelatedArticles  []Article     `json:"related_articles"`
}

type OutcomePair struct {
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

type Article struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Decision is the structured trade instruction returned by the decision
// oracle. Side and Size are meaningful only when Action is buy or sell.
type Decision struct {
	Action     string  `json:"action"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (d Decision) Hold() bool { return d.Action == models.ActionHold }

var (
	validActions = map[string]struct{}{
		models.ActionBuy:  {},
		models.ActionSell: {},
		models.ActionHold: {},
	}
	validSides = map[string]struct{}{
		models.SideYes: {},
		models.SideNo:  {},
	}
)

// Validate checks the oracle output against the decision schema. Callers
// coerce any validation failure to Hold rather than propagating it.
func (d Decision) Validate() error {
	action := strings.ToLower(strings.TrimSpace(d.Action))
	if action == "" {
		return fmt.Errorf("action is required")
	}
	if _, ok := validActions[action]; !ok {
		return fmt.Errorf("invalid action: %s", d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", d.Confidence)
	}
	if action == models.ActionHold {
		return nil
	}
	side := strings.ToLower(strings.TrimSpace(d.Side))
	if _, ok := validSides[side]; !ok {
		return fmt.Errorf("invalid side for %s: %q", action, d.Side)
	}
	if d.Size <= 0 {
		return fmt.Errorf("size must be positive for %s, got %f", action, d.Size)
	}
	return nil
}

func (d Decision) normalized() Decision {
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	d.Side = strings.ToLower(strings.TrimSpace(d.Side))
	return d
}

// Decider converts an enriched market context into a trade Decision. A
// response outside the expected schema, or transport failure past the retry
// budget, is coerced to Hold. Decide never returns an error.
type Decider struct {
	api    chatAPI
	model  string
	policy RetryPolicy
	logger *zap.Logger
}

func NewDecider(api chatAPI, model string, policy RetryPolicy, logger *zap.Logger) *Decider {
	return &Decider{api: api, model: model, policy: policy, logger: nopLogger(logger)}
}

const deciderSystemPrompt = `You are an automated prediction-market trading assistant.

Behavioral rules:
1) Respond with exactly one JSON object matching the schema below. Never output free text around it.
2) You may answer action "hold" if signals are weak or ambiguous, or you do not expect a significant probability shift. Do not force a trade.
3) If you do trade, choose one side ("yes" or "no") and a positive size.
4) Consider only the provided market snapshot and articles. Do NOT invent external facts.
5) Prefer caution near market close, on thin liquidity, or when the price already implies the view.

Decision heuristics:
- Extremely low/high prices may be near-saturated; require stronger evidence to predict further movement.
- If endDate is very near and the articles imply no strong catalyst, lean hold.
- If outcome prices are close and no differentiator is present, lean hold.

Output schema:
{
  "action": "buy|sell|hold",
  "side": "yes|no",
  "size": 0.0,
  "confidence": 0.0,
  "rationale": "..."
}`

func holdDecision(rationale string) Decision {
	return Decision{Action: models.ActionHold, Rationale: rationale}
}

func (d *Decider) Decide(ctx context.Context, mc MarketContext) Decision {
	payload, err := json.Marshal(mc)
	if err != nil {
		d.logger.Warn("decision context not serializable, holding", zap.Error(err))
		return holdDecision(FailSafeRationale)
	}

	var raw string
	err = d.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := d.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: d.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: deciderSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: string(payload)},
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
		d.logger.Warn("decision oracle unavailable, holding",
			zap.String("market_id", mc.MarketID),
			zap.Error(err),
		)
		return holdDecision(FailSafeRationale)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		d.logger.Warn("decision oracle returned unparseable output, holding",
			zap.String("market_id", mc.MarketID),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return holdDecision(FailSafeRationale)
	}
	decision = decision.normalized()
	if err := decision.Validate(); err != nil {
		d.logger.Warn("decision oracle output failed validation, holding",
			zap.String("market_id", mc.MarketID),
			zap.Error(err),
		)
		return holdDecision(FailSafeRationale)
	}

	d.logger.Info("decision generated",
		zap.String("market_id", mc.MarketID),
		zap.String("action", decision.Action),
		zap.String("side", decision.Side),
		zap.Float64("confidence", decision.Confidence),
	)
	return decision
}

func parseDecision(content string) (Decision, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}
	var decision Decision
	if err = json.Unmarshal(payload, &decision); err != nil {
		return Decision{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	return decision, nil
}

// extractJSON pulls the outermost JSON object out of a completion that may
// wrap it in markdown fences or commentary.
func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in oracle output: %s", content)
	}
	return []byte(content[start : end+1]), nil
}
