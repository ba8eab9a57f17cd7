package observe

import "strings"

// Price is the USD cost per thousand tokens.
type Price struct {
	Prompt     float64
	Completion float64
}

// pricing is matched by substring against the model name, first match wins,
// so more specific names come first.
var pricing = []struct {
	model string
	price Price
}{
	{"gpt-4o-mini", Price{Prompt: 0.00015, Completion: 0.0006}},
	{"gpt-4o", Price{Prompt: 0.0025, Completion: 0.01}},
	{"gpt-3.5-turbo", Price{Prompt: 0.002, Completion: 0.002}},
	{"gpt-4", Price{Prompt: 0.03, Completion: 0.06}},
	{"claude", Price{Prompt: 0.003, Completion: 0.015}},
	{"deepseek", Price{Prompt: 0.00027, Completion: 0.0011}},
	{"gemini", Price{Prompt: 0.0003, Completion: 0.0025}},
}

// fallbackPrice is charged for unknown models so the estimate errs high.
var fallbackPrice = Price{Prompt: 0.03, Completion: 0.06}

// PriceFor returns the per-1k-token price for model.
func PriceFor(model string) Price {
	model = strings.ToLower(model)
	for _, p := range pricing {
		if strings.Contains(model, p.model) {
			return p.price
		}
	}
	return fallbackPrice
}

// Cost estimates the USD cost of a call to model.
func Cost(model string, promptTokens, completionTokens uint32) float64 {
	p := PriceFor(model)
	return float64(promptTokens)*p.Prompt/1000 + float64(completionTokens)*p.Completion/1000
}
