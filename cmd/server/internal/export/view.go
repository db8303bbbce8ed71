package export

import (
	"sort"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

// TableRow 表格视图的一行，按开始时间排序
type TableRow struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// TableView projects the result into start-sorted rows.
func TableView(result *pipeline.Result) []TableRow {
	rows := make([]TableRow, 0, len(result.Records))
	for _, rec := range sortedRecords(result) {
		rows = append(rows, TableRow{
			Speaker: rec.Speaker,
			Start:   rec.Start,
			End:     rec.End,
			Text:    rec.Text,
		})
	}
	return rows
}

// ChatMessage 聊天视图的一条气泡，带说话人配色
type ChatMessage struct {
	Speaker string  `json:"speaker"`
	Color   string  `json:"color"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Failed  bool    `json:"failed,omitempty"`
	Repeat  bool    `json:"repeat,omitempty"`
}

// ChatView projects the result into chronological chat bubbles.
func ChatView(result *pipeline.Result) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(result.Records))
	for _, rec := range sortedRecords(result) {
		msgs = append(msgs, ChatMessage{
			Speaker: rec.Speaker,
			Color:   rec.Color,
			Start:   rec.Start,
			End:     rec.End,
			Text:    rec.Text,
			Failed:  rec.Failed,
			Repeat:  rec.Repeat,
		})
	}
	return msgs
}

// SpeakerShare 发言时长摘要中一个说话人的占比
type SpeakerShare struct {
	Speaker   string  `json:"speaker"`
	TalkTime  float64 `json:"talk_time"`
	Share     float64 `json:"share"`
	TurnCount int     `json:"turn_count"`
}

// Summary 发言时长摘要投影
type Summary struct {
	SessionID    string         `json:"session_id"`
	NumSpeakers  int            `json:"num_speakers"`
	Duration     float64        `json:"duration"`
	TotalTalkSec float64        `json:"total_talk_time"`
	Speakers     []SpeakerShare `json:"speakers"`
}

// BuildSummary projects the per-speaker talk-time totals and each
// speaker's share of the summed talk time, longest speaker first.
func BuildSummary(result *pipeline.Result) Summary {
	total := result.TotalTalkTime()

	shares := make([]SpeakerShare, 0, len(result.Speakers))
	for _, agg := range result.Speakers {
		share := 0.0
		if total > 0 {
			share = agg.TalkTime / total
		}
		shares = append(shares, SpeakerShare{
			Speaker:   agg.Speaker,
			TalkTime:  agg.TalkTime,
			Share:     share,
			TurnCount: agg.TurnCount,
		})
	}
	sort.Slice(shares, func(a, b int) bool {
		if shares[a].TalkTime != shares[b].TalkTime {
			return shares[a].TalkTime > shares[b].TalkTime
		}
		return shares[a].Speaker < shares[b].Speaker
	})

	return Summary{
		SessionID:    result.SessionID,
		NumSpeakers:  result.NumSpeakers,
		Duration:     result.Duration,
		TotalTalkSec: total,
		Speakers:     shares,
	}
}
