package analysis

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postsignal/internal/model"
)

// Tier identifies which parser accepted a model reply.
type Tier int

const (
	TierNone Tier = iota
	TierJSON
	TierRepair
	TierFields
	TierKeywords
)

func (t Tier) String() string {
	switch t {
	case TierJSON:
		return "json"
	case TierRepair:
		return "repair"
	case TierFields:
		return "fields"
	case TierKeywords:
		return "keywords"
	}
	return "none"
}

const (
	defaultConfidence  = 5
	keywordConfidence  = 6
	defaultExplanation = "AI analysis completed"
	maxExplanation     = 280
)

// ErrUnparseable is returned when no tier can read the reply.
var ErrUnparseable = eris.New("analysis: unparseable model reply")

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	singleQuotedRe  = regexp.MustCompile(`'([^'\n]*)'`)

	actionFieldRe     = regexp.MustCompile(`(?i)["']?action["']?\s*[:=]\s*["']?([A-Za-z]+)`)
	confidenceFieldRe = regexp.MustCompile(`(?i)["']?confidence["']?\s*[:=]\s*["']?(\d+)`)
	reasonFieldRe     = regexp.MustCompile(`(?i)["']?(?:reason|explanation)["']?\s*[:=]\s*["']?([^"'\n}]+)`)

	actionKeywordRe = regexp.MustCompile(`(?i)\b(buy|sell|avoid|hold|hodl|invert)\b`)
)

// ParseSignal reads a model reply into a signal, trying in order: the first
// JSON object, the same object after syntax repair, labelled fields, and
// finally the earliest action keyword. The action is normalised and the
// confidence clamped to 1..10.
func ParseSignal(reply string, content model.DetectedContent) (model.TradingSignal, Tier, error) {
	region := jsonRegion(reply)

	parsers := []struct {
		tier Tier
		fn   func() (rawSignal, bool)
	}{
		{TierJSON, func() (rawSignal, bool) { return decodeObject(region) }},
		{TierRepair, func() (rawSignal, bool) { return decodeObject(repairJSON(region)) }},
		{TierFields, func() (rawSignal, bool) { return scanFields(reply) }},
		{TierKeywords, func() (rawSignal, bool) { return scanKeywords(reply) }},
	}
	for _, p := range parsers {
		raw, ok := p.fn()
		if !ok {
			continue
		}
		return raw.signal(content), p.tier, nil
	}
	return model.TradingSignal{}, TierNone, ErrUnparseable
}

type rawSignal struct {
	action     string
	confidence int
	reason     string
}

func (r rawSignal) signal(content model.DetectedContent) model.TradingSignal {
	conf := r.confidence
	if conf == 0 {
		conf = defaultConfidence
	}
	reason := strings.TrimSpace(r.reason)
	if reason == "" {
		reason = defaultExplanation
	}
	return model.TradingSignal{
		Action:      model.NormalizeAction(r.action),
		Confidence:  model.ClampConfidence(conf),
		Explanation: truncate(reason, maxExplanation),
		Token:       content.PrimaryToken(),
	}
}

// jsonRegion strips code fences and returns the span from the first '{' to
// the last '}', or "" when there is none.
func jsonRegion(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func repairJSON(region string) string {
	if region == "" {
		return ""
	}
	s := singleQuotedRe.ReplaceAllString(region, `"$1"`)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return bareKeyRe.ReplaceAllString(s, `$1"$2":`)
}

func decodeObject(region string) (rawSignal, bool) {
	if region == "" {
		return rawSignal{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(region), &obj); err != nil {
		return rawSignal{}, false
	}
	reason := stringField(obj["reason"])
	if reason == "" {
		reason = stringField(obj["explanation"])
	}
	return rawSignal{
		action:     stringField(obj["action"]),
		confidence: intField(obj["confidence"]),
		reason:     reason,
	}, true
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func intField(v any) int {
	switch x := v.(type) {
	case float64:
		return int(math.Round(x))
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return int(math.Round(n))
	}
	return 0
}

func scanFields(text string) (rawSignal, bool) {
	m := actionFieldRe.FindStringSubmatch(text)
	if m == nil {
		return rawSignal{}, false
	}
	raw := rawSignal{action: m[1]}
	if c := confidenceFieldRe.FindStringSubmatch(text); c != nil {
		raw.confidence, _ = strconv.Atoi(c[1])
	}
	if r := reasonFieldRe.FindStringSubmatch(text); r != nil {
		raw.reason = strings.TrimRight(strings.TrimSpace(r[1]), ",")
	}
	return raw, true
}

func scanKeywords(text string) (rawSignal, bool) {
	m := actionKeywordRe.FindString(text)
	if m == "" {
		return rawSignal{}, false
	}
	action := strings.ToUpper(m)
	if action == "INVERT" {
		action = string(model.ActionAvoid)
	}
	return rawSignal{
		action:     action,
		confidence: keywordConfidence,
		reason:     text,
	}, true
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
