package recon

import (
	"fmt"
	"sort"
	"time"

	"github.com/quipu-erp/quipu-erp/internal/money"
)

// SuggestConfig tunes the auto-match algorithm. The window width and decay
// floor are deliberately configurable rather than hard-coded.
type SuggestConfig struct {
	// WindowDays is the maximum date distance between a transaction and a
	// candidate line.
	WindowDays int
	// FloorConfidence is the confidence at the window edge; decay from 1.0
	// is linear.
	FloorConfidence float64
	// AmbiguityPenalty is subtracted when several lines tie on amount for
	// one transaction.
	AmbiguityPenalty float64
}

// DefaultSuggestConfig mirrors the documented defaults: a 5-day window with
// linear decay to 0.5.
func DefaultSuggestConfig() SuggestConfig {
	return SuggestConfig{
		WindowDays:       5,
		FloorConfidence:  0.5,
		AmbiguityPenalty: 0.1,
	}
}

func (c SuggestConfig) normalized() SuggestConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = 5
	}
	if c.FloorConfidence <= 0 || c.FloorConfidence >= 1 {
		c.FloorConfidence = 0.5
	}
	if c.AmbiguityPenalty < 0 {
		c.AmbiguityPenalty = 0
	}
	return c
}

type candidate struct {
	txn        BankTransaction
	line       EntryLine
	confidence float64
	reason     string
}

// BuildSuggestions pairs unreconciled bank transactions with unreconciled
// entry lines. It is pure and deterministic: identical inputs produce
// identical ordering and confidences.
//
// A bank debit pairs with a book credit and vice versa, reflecting the
// opposite polarity of the two views. Assignment is greedy one-to-one in
// descending confidence; ties break on earliest line date, then lowest line
// id, then lowest transaction id.
func BuildSuggestions(txns []BankTransaction, lines []EntryLine, cfg SuggestConfig) []Suggestion {
	cfg = cfg.normalized()

	var candidates []candidate
	for _, txn := range txns {
		matched := candidateLines(txn, lines, cfg.WindowDays)
		ambiguous := len(matched) > 1
		for _, line := range matched {
			days := dateDistanceDays(txn.Date, line.Date)
			confidence := 1.0 - float64(days)/float64(cfg.WindowDays)*(1.0-cfg.FloorConfidence)
			reason := describeMatch(days)
			if ambiguous {
				confidence -= cfg.AmbiguityPenalty
				reason += fmt.Sprintf("; %d lines tie on amount", len(matched))
			}
			if confidence < 0 {
				confidence = 0
			}
			candidates = append(candidates, candidate{txn: txn, line: line, confidence: confidence, reason: reason})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if !a.line.Date.Equal(b.line.Date) {
			return a.line.Date.Before(b.line.Date)
		}
		if a.line.ID != b.line.ID {
			return a.line.ID < b.line.ID
		}
		return a.txn.ID < b.txn.ID
	})

	claimedTxns := make(map[int64]bool)
	claimedLines := make(map[int64]bool)
	var out []Suggestion
	for _, c := range candidates {
		if claimedTxns[c.txn.ID] || claimedLines[c.line.ID] {
			continue
		}
		claimedTxns[c.txn.ID] = true
		claimedLines[c.line.ID] = true
		out = append(out, Suggestion{
			TransactionID: c.txn.ID,
			LineID:        c.line.ID,
			Confidence:    c.confidence,
			Reason:        c.reason,
		})
	}
	return out
}

func candidateLines(txn BankTransaction, lines []EntryLine, windowDays int) []EntryLine {
	var out []EntryLine
	for _, line := range lines {
		if !oppositePolarity(txn, line) {
			continue
		}
		if !money.WithinTolerance(txn.Amount(), line.Amount()) {
			continue
		}
		if dateDistanceDays(txn.Date, line.Date) > windowDays {
			continue
		}
		out = append(out, line)
	}
	return out
}

func oppositePolarity(txn BankTransaction, line EntryLine) bool {
	if txn.Debit != 0 {
		return line.Credit != 0
	}
	return line.Debit != 0
}

func dateDistanceDays(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(a.Sub(b).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

func describeMatch(days int) string {
	switch days {
	case 0:
		return "exact amount, same day"
	case 1:
		return "exact amount, 1 day apart"
	default:
		return fmt.Sprintf("exact amount, %d days apart", days)
	}
}
