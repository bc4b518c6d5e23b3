package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"KabuScout/internal/model"
)

const dateLayout = "2006-01-02"

var channelLabels = map[model.Channel]string{
	model.ChannelBullish: "上昇チャネル",
	model.ChannelBearish: "下降チャネル",
	model.ChannelUnknown: "判定不可",
}

func esc(s string) string { return html.EscapeString(s) }

func signedPct(ind model.Indicator) string {
	if !ind.Valid {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", ind.Value)
}

// FormatScanReport renders a ranked scan result: one block per hit, then the skips.
func FormatScanReport(res *model.ScanResult) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>スクリーニング結果</b> | %s | %s\n",
		esc(res.Category), res.FinishedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("対象 %d 銘柄 / 該当 %d / スキップ %d\n\n",
		res.Evaluated, len(res.Hits), len(res.Skips)))

	if len(res.Hits) == 0 {
		b.WriteString("条件に合う銘柄はありませんでした。\n")
	}
	for i, row := range res.Rows() {
		h := res.Hits[i]
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> %s\n", i+1, esc(row.Symbol), esc(row.DisplayName)))
		b.WriteString(fmt.Sprintf("   終値 %.2f (%s) | RSI %s\n",
			row.LastClose, signedPct(h.Snapshot.ChangePct), row.RSI.Format(1)))
		if c := row.Commentary; c != "" {
			b.WriteString(fmt.Sprintf("   💬 %s\n", esc(c)))
		}
	}

	if len(res.Skips) > 0 {
		b.WriteString("\n⚠️ <b>スキップ:</b>\n")
		for _, s := range res.Skips {
			b.WriteString(fmt.Sprintf("  %s (%s)\n", esc(s.Entry.Symbol), s.Reason))
		}
	}
	return b.String()
}

// FormatCheck renders the detailed indicator view of a single symbol.
func FormatCheck(hit *model.Hit, skip *model.Skip) string {
	if skip != nil {
		msg := fmt.Sprintf("⚠️ %s を評価できませんでした: %s", esc(skip.Entry.Symbol), skip.Reason)
		if skip.Detail != "" {
			msg += "\n" + esc(skip.Detail)
		}
		return msg
	}
	if hit == nil {
		return ""
	}

	s := hit.Snapshot
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔎 <b>%s</b> %s\n\n", esc(hit.Entry.Symbol), esc(hit.Entry.Label)))
	b.WriteString(fmt.Sprintf("終値: %.2f (%s)\n", s.LastClose, signedPct(s.ChangePct)))
	b.WriteString(fmt.Sprintf("RSI(14): %s\n", s.RSI14.Format(1)))
	b.WriteString(fmt.Sprintf("SMA20: %s | SMA50: %s\n", s.SMA20.Format(2), s.SMA50.Format(2)))
	b.WriteString(fmt.Sprintf("サポート: %s | レジスタンス: %s\n", s.Support.Format(2), s.Resistance.Format(2)))
	b.WriteString(fmt.Sprintf("トレンド: %s (傾き %s)\n", channelLabels[s.Channel], s.TrendSlope.Format(3)))
	b.WriteString(fmt.Sprintf("チャネル: %s - %s\n", s.TrendLower.Format(2), s.TrendUpper.Format(2)))
	if c := hit.Advice.Commentary(); c != "" {
		b.WriteString(fmt.Sprintf("\n💬 %s\n", esc(c)))
	}
	return b.String()
}

// FormatPickCreated confirms a newly registered pick.
func FormatPickCreated(p model.Pick) string {
	return fmt.Sprintf("✅ 登録しました: <b>%s</b> %s @ %.2f (%s)",
		esc(p.Symbol), esc(p.DisplayName), p.RegisteredPrice, p.RegisteredDate.Format(dateLayout))
}

// FormatPicks lists the currently tracked picks.
func FormatPicks(picks []model.Pick) string {
	if len(picks) == 0 {
		return "📦 登録中の銘柄はありません。"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>登録銘柄</b> (%d)\n\n", len(picks)))
	for _, p := range picks {
		b.WriteString(fmt.Sprintf("%s  <b>%s</b> %s @ %.2f\n",
			p.RegisteredDate.Format(dateLayout), esc(p.Symbol), esc(p.DisplayName), p.RegisteredPrice))
	}
	return b.String()
}

// FormatVerification renders the outcome of every tracked pick.
func FormatVerification(rep *model.VerificationReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧾 <b>検証レポート</b> | %s\n\n", rep.GeneratedAt.Format(dateLayout)))

	if len(rep.Rows) == 0 && len(rep.Unverifiable) == 0 {
		b.WriteString("検証対象の銘柄はありません。\n")
		return b.String()
	}
	for _, v := range rep.Rows {
		mark := "🔻"
		if v.ChangePct >= 0 {
			mark = "🔺"
		}
		b.WriteString(fmt.Sprintf("%s <b>%s</b> %s\n", mark, esc(v.Pick.Symbol), esc(v.Pick.DisplayName)))
		b.WriteString(fmt.Sprintf("   登録 %.2f → 現在 %.2f (%+.2f%%) | 最高値 %.2f (%+.2f%%) | %d日\n",
			v.Pick.RegisteredPrice, v.LatestClose, v.ChangePct, v.MaxHigh, v.UpsidePct, v.DaysHeld))
	}
	if len(rep.Unverifiable) > 0 {
		b.WriteString("\n⚠️ <b>検証不可:</b>\n")
		for _, u := range rep.Unverifiable {
			b.WriteString(fmt.Sprintf("  %s: %s\n", esc(u.Pick.Symbol), esc(u.Reason)))
		}
	}
	return b.String()
}

// FormatError renders a command failure.
func FormatError(action string, err error) string {
	return fmt.Sprintf("❌ %s に失敗しました: %s", action, esc(err.Error()))
}

// FormatHelp lists the supported commands.
func FormatHelp(categories []string) string {
	var b strings.Builder
	b.WriteString("📖 <b>コマンド一覧</b>\n\n")
	b.WriteString(fmt.Sprintf("/scan &lt;category&gt; - スクリーニング実行 (%s)\n", esc(strings.Join(categories, ", "))))
	b.WriteString("/check &lt;symbol&gt; - 個別銘柄の指標\n")
	b.WriteString("/pick &lt;symbol&gt; - 直近スキャンの該当銘柄を登録\n")
	b.WriteString("/picks - 登録銘柄一覧\n")
	b.WriteString("/verify - 登録銘柄の検証\n")
	return b.String()
}

// FormatStartup is sent once when the process starts.
func FormatStartup(now time.Time, categories []string) string {
	return fmt.Sprintf("🟢 KabuScout 起動 | %s\nウォッチリスト: %s",
		now.Format("2006-01-02 15:04"), esc(strings.Join(categories, ", ")))
}
