package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"skinfund/internal/types"
)

const analystOutputFormat = `
Provide structured output:
- signal: ["Bullish", "Bearish", "Neutral"]
- justification: Brief explanation of your analysis
`

const technicalPromptTmpl = `
You are a technical analyst evaluating items in CS2 market using multiple technical analysis strategies.

The following signals have been generated from our analysis:

Price Trend Analysis:
- Trend Following: %s

Mean Reversion and Momentum:
- Mean Reversion: %s
- RSI: %s
- Volatility: %s

Volume Analysis:
%s

Support and Resistance Levels:
%s
` + analystOutputFormat

const sentimentPromptTmpl = `
You are a sentiment analyst evaluating items in CS2 market based on Reddit discussions.

Analyze Reddit discussions for %[1]s (%[2]d posts):
- Direct posts: price trends, demand/supply factors
- General posts: overall market mood, infer impact on %[1]s
- Focus on content sentiment, not just upvotes/comments
- If posts < 5: return "Neutral" and explain data limits

Reddit discussions:
%[3]s

Give a short-term (1-2 weeks) sentiment: Bullish / Bearish / Neutral.
` + analystOutputFormat

const sentimentInsufficientPromptTmpl = `
You are a CS2 sentiment analyst. However, there is not enough data to evaluate the sentiment of the item.

Insufficient data for %s:
- Posts found: %d (min required: %d)

Return "Neutral" and explain: data is insufficient (lack of discussion/visibility), we treat it as a neutral sentiment; highlight uncertainty and recommend caution.
` + analystOutputFormat

const sentimentFetchErrorPromptTmpl = `
You are a CS2 sentiment analyst.

Reddit sentiment for %s could not be evaluated due to a data fetch error.

Return "Neutral" and briefly explain that sentiment is unavailable because of the fetch error; note that this is a conservative fallback.
` + analystOutputFormat

const sentimentReversePromptTmpl = `
You are a contrarian sentiment analyst for CS2 market items. Apply reverse sentiment analysis based on the contrarian hypothesis.

Original sentiment signal: %s
Original justification: %s

**Contrarian Hypothesis:**
- Overly bullish Reddit chatter can signal market overheating, so potentially bearish
- Negative chatter can indicate overselling, so potentially bullish
- Neutral sentiment remains neutral

**Your task:**
- Reverse the signal direction (Bullish to Bearish, Bearish to Bullish, Neutral stays Neutral)
- Provide a justification explaining the contrarian interpretation

Evaluate the reversed sentiment for %s based on the contrarian hypothesis.
` + analystOutputFormat

const eventPromptTmpl = `
You are an event analyst for CS2 items. Analyze Steam news for price impact on %[1]s.

**Impact Assessment (priority order):**
1. **Supply mechanism** (strongest): Drop pool, crate/box, rarity, trade-up path changes
2. **Visibility/popularity** (moderate): New crates, team stickers, weapon balance changes
3. **Market sentiment** (indirect): Player influx, major updates, speculative activity

**Signal:**
- Bullish: Increases scarcity/visibility or positive sentiment
- Bearish: Increases supply, decreases visibility, or negative sentiment
- Neutral: No clear impact, insufficient data (%[2]d items), or mixed signals

Steam News (%[2]d items):
%[3]s

Evaluate event impact (bullish/bearish/neutral) for short-term (1-2 weeks) price movement of %[1]s. Specify which news items and factors influenced your signal.
` + analystOutputFormat

const liquidityPromptTmpl = `
You are a liquidity analyst for CS2 items. Analyze liquidity based on trading volume and Reddit engagement.

**Analysis:**
%s

%s

**Thresholds:**
- Volume: High >=%d, Low <%d
- Reddit: High (score >=%d or comments >=%d), Low (score <%d and comments <%d)
- Min posts: %d

**Signal:**
- Bullish: High volume OR strong engagement (both means higher confidence)
- Bearish: Low volume OR weak engagement (both means higher confidence)
- Neutral: Mixed/conflicting indicators or insufficient data

Evaluate liquidity (bullish/bearish/neutral) for %s. Explain which indicators contributed most.
` + analystOutputFormat

const portfolioPromptTmpl = `
You are a portfolio manager making final trading decisions based on decision memory and the provided optimal position ratio.

Decision memory:
%s

Current Price: %.2f
Holding Shares: %d
Tradable Shares: %d

Trading friction: selling fee %.2f%% (applies to sells only).

Rules:
- If tradable_shares > 0: you may buy (no fee on buy).
- If tradable_shares < 0: you may sell; ensure expected downside risk outweighs sell fee.
- If tradable_shares is about 0 or expected gain < sell-fee impact: choose Hold.
- Ensure expected profit after (sell) fees is positive; otherwise Hold.

You must provide your decision as a structured output with the following fields:
- action: One of ["Buy", "Sell", "Hold"]
- shares: Number of shares to buy or sell, set 0 for hold
- price: The current price of the ticker
- justification: Briefly explain your decision, explicitly noting how the 2%% sell fee impacted the choice.

Your response should be well-reasoned and consider all aspects of the analysis.
`

const portfolioPromptNoFeeTmpl = `
You are a portfolio manager making final trading decisions based on decision memory and the provided optimal position ratio.

Decision memory:
%s

Current Price: %.2f
Holding Shares: %d
Tradable Shares: %d

Rules:
- If tradable_shares > 0: you may buy.
- If tradable_shares < 0: you may sell.
- If tradable_shares is about 0: choose Hold.

You must provide your decision as a structured output with the following fields:
- action: One of ["Buy", "Sell", "Hold"]
- shares: Number of shares to buy or sell, set 0 for hold
- price: The current price of the ticker
- justification: Briefly explain your decision.

Your response should be well-reasoned and consider all aspects of the analysis.
`

const plannerPromptTmpl = `
You are a planner agent that decides which analysts to perform based on the your knowledge of the ticker and features of analysts.

Here is the ticker:
%s

Here are the available analysts:
%s

You must provide your decision as a structured output with the following fields:
- analysts: selected analyst_name list
- justification: brief explanation of your selection
`

const riskControlPromptTmpl = `
You are a professional risk control analyst.
Please evaluate the risk of the ticker and set the optimal position ratio based on analyst signals and portfolio state.

Here are the analyst signals:
%s

Here is the portfolio state:
%s

The position ratio range: [0, %.2f], the minimum step is 0.05.
If you observe more bullish signals, you can set a larger position ratio.
If you observe more bearish signals, you can set a smaller position ratio.

You must provide your control recommendation as a structured output with the following fields:
- optimal_position_ratio: The optimal ratio of the position value to the total portfolio value
- justification: A brief explanation of your recommendation

Your response should be well-reasoned and consider all aspects of the analysis.
`

const riskControlDirectPromptTmpl = `
Analyze the CS2 item and set position ratio.

Ticker: %s
Portfolio: %s

Position ratio range: [0, %.2f], step: 0.05.

Output:
- optimal_position_ratio: number
- justification: brief explanation
`

func marshalIndent(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func portfolioStateJSON(p types.Portfolio) string {
	state := map[string]interface{}{
		"cashflow":     p.Cashflow,
		"positions":    p.Positions,
		"total_assets": p.Cashflow + p.PositionsValue(),
	}
	return marshalIndent(state)
}

func plannerCatalog(candidates []string, describe func(string) string) string {
	var b strings.Builder
	for _, id := range candidates {
		doc := describe(id)
		if doc == "" {
			doc = "(no description)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", id, doc)
	}
	return b.String()
}
