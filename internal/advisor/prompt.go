package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"KabuScout/internal/model"

	"github.com/kaptinlin/jsonrepair"
)

// Prompt is the structured input for one advisory request.
type Prompt struct {
	Symbol    string
	Name      string
	Price     float64
	ChangePct model.Indicator
	RSI       model.Indicator
	SMA20     model.Indicator
	SMA50     model.Indicator
	Channel   model.Channel
}

// PromptFor builds a prompt from a watch entry and its snapshot.
func PromptFor(entry model.WatchEntry, snap model.IndicatorSnapshot) Prompt {
	return Prompt{
		Symbol:    entry.Symbol,
		Name:      entry.Label,
		Price:     snap.LastClose,
		ChangePct: snap.ChangePct,
		RSI:       snap.RSI14,
		SMA20:     snap.SMA20,
		SMA50:     snap.SMA50,
		Channel:   snap.Channel,
	}
}

// Render produces the text sent to the service. The reply is requested as JSON.
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString("あなたは株の先生です。小学生にもわかる言葉で答えてください。\n")
	b.WriteString(fmt.Sprintf("銘柄: %s %s\n", p.Symbol, p.Name))
	b.WriteString(fmt.Sprintf("現在値: %.0f円 (前日比 %s%%)\n", p.Price, p.ChangePct.Format(2)))
	b.WriteString(fmt.Sprintf("RSI(14): %s\n", p.RSI.Format(1)))
	b.WriteString(fmt.Sprintf("20日平均: %s / 50日平均: %s\n", p.SMA20.Format(0), p.SMA50.Format(0)))
	b.WriteString(fmt.Sprintf("トレンド: %s\n\n", channelLabel(p.Channel)))
	b.WriteString("質問: この株は今、買ったほうがいい？売ったほうがいい？\n\n")
	b.WriteString("ルール:\n")
	b.WriteString("1. verdict は「買い」「売り」「様子見」のどれか1つ。\n")
	b.WriteString("2. reason は1行で短く。\n")
	b.WriteString(`3. 次のJSONだけを返す: {"verdict": "...", "reason": "..."}`)
	return b.String()
}

func channelLabel(c model.Channel) string {
	switch c {
	case model.ChannelBullish:
		return "上昇チャネル"
	case model.ChannelBearish:
		return "下降チャネル"
	default:
		return "不明"
	}
}

type verdictReply struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// ParseAdvice decodes a reply, repairing malformed JSON. A reply that cannot be
// decoded is kept as raw text with an unknown verdict.
func ParseAdvice(text string) model.Advice {
	advice := model.Advice{Text: strings.TrimSpace(text)}

	raw := advice.Text
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 {
		return advice
	}
	if end > start {
		raw = raw[start : end+1]
	} else {
		raw = raw[start:]
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return advice
	}
	var reply verdictReply
	if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
		return advice
	}
	advice.Verdict = normalizeVerdict(reply.Verdict)
	advice.Reason = strings.TrimSpace(reply.Reason)
	return advice
}

func normalizeVerdict(v string) model.Verdict {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "買い", "buy":
		return model.VerdictBuy
	case "売り", "sell":
		return model.VerdictSell
	case "様子見", "hold", "wait":
		return model.VerdictHold
	}
	return model.VerdictUnknown
}
