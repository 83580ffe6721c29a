package matcher

import (
	"fmt"

	"golang-bank-reconciliation/internal/models"
)

// DuplicateGroup is a set of statement items that look like the same bank
// movement imported more than once
type DuplicateGroup struct {
	Items      []*models.StatementItem
	Confidence float64
	Reason     string
}

// DetectDuplicates groups items with the same amount on the same calendar
// day. Descriptions and references raise the confidence of a group but are
// not required to match, since banks often vary them between exports.
func DetectDuplicates(items []*models.StatementItem) []DuplicateGroup {
	var groups []DuplicateGroup
	processed := make(map[int]bool)

	for i, first := range items {
		if processed[i] {
			continue
		}
		dupes := []*models.StatementItem{first}

		for j := i + 1; j < len(items); j++ {
			if processed[j] {
				continue
			}
			if isPotentialDuplicate(first, items[j]) {
				dupes = append(dupes, items[j])
				processed[j] = true
			}
		}

		if len(dupes) > 1 {
			groups = append(groups, DuplicateGroup{
				Items:      dupes,
				Confidence: duplicateConfidence(dupes),
				Reason: fmt.Sprintf("%d items of %s on %s", len(dupes),
					first.Amount.String(), first.Date.Format("2006-01-02")),
			})
		}
		processed[i] = true
	}

	return groups
}

func isPotentialDuplicate(a, b *models.StatementItem) bool {
	return a.Amount.Equal(b.Amount) && models.SameDay(a.Date, b.Date)
}

// duplicateConfidence starts at 0.6 for amount and day and adds the
// average description similarity and a reference bonus
func duplicateConfidence(items []*models.StatementItem) float64 {
	first := items[0]
	total := 0.0
	for _, other := range items[1:] {
		score := 0.6 + 0.3*DescriptionSimilarity(first.Description, other.Description)
		if ReferenceScore(first.Reference, other.Reference) > 0 {
			score += 0.1
		}
		total += score
	}
	return total / float64(len(items)-1)
}
