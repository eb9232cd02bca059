package extract

import (
	"encoding/json"
	"fmt"
)

const (
	defaultSampleMaxDays   = 5
	defaultSampleMaxPerDay = 100
	minSamplePerDay        = 1
)

// SampleMessage is the reduced message shape handed to the model.
type SampleMessage struct {
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
}

// SampleOptions bounds the size of the sample. A zero value uses the
// defaults. When MaxTokens and CountTokens are both set, the per-day cap
// is halved until the encoded sample fits the token budget.
type SampleOptions struct {
	MaxDays     int
	MaxPerDay   int
	MaxTokens   int
	CountTokens func(text string) int
}

func (o SampleOptions) withDefaults() SampleOptions {
	if o.MaxDays <= 0 {
		o.MaxDays = defaultSampleMaxDays
	}
	if o.MaxPerDay <= 0 {
		o.MaxPerDay = defaultSampleMaxPerDay
	}
	return o
}

// BuildSample collects messages from the busiest days, taking a centered
// slice of at most MaxPerDay messages per day. The result order follows
// the busiest-day ranking and is deterministic for identical input.
func BuildSample(stats Stats, opts SampleOptions) []SampleMessage {
	opts = opts.withDefaults()

	days := stats.BusiestDays
	if len(days) > opts.MaxDays {
		days = days[:opts.MaxDays]
	}

	sample := collectSample(stats, days, opts.MaxPerDay)
	if opts.MaxTokens <= 0 || opts.CountTokens == nil {
		return sample
	}

	perDay := opts.MaxPerDay
	for perDay > minSamplePerDay {
		encoded, err := EncodeSample(sample)
		if err != nil || opts.CountTokens(encoded) <= opts.MaxTokens {
			break
		}
		perDay /= 2
		sample = collectSample(stats, days, perDay)
	}
	return sample
}

func collectSample(stats Stats, days []string, perDay int) []SampleMessage {
	var sample []SampleMessage
	for _, day := range days {
		dayMessages := stats.DayMessages[day]
		if len(dayMessages) > perDay {
			start := (len(dayMessages) - perDay) / 2
			dayMessages = dayMessages[start : start+perDay]
		}
		for _, msg := range dayMessages {
			sample = append(sample, SampleMessage{SenderID: msg.SenderID, Body: msg.Body})
		}
	}
	return sample
}

// EncodeSample renders the sample as the JSON document embedded in the
// extraction prompt.
func EncodeSample(sample []SampleMessage) (string, error) {
	if sample == nil {
		sample = []SampleMessage{}
	}
	encoded, err := json.Marshal(map[string][]SampleMessage{"messages": sample})
	if err != nil {
		return "", fmt.Errorf("failed to encode message sample: %w", err)
	}
	return string(encoded), nil
}
