package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/eventhint/eventhint/pkg/event"
)

// bucketSize groups drafts whose starts land in the same window so
// near-identical times from different extractors can be compared.
const bucketSize = 15 * time.Minute

// titleSimilarityThreshold is the Jaccard floor above which two drafts
// in the same time bucket are treated as the same event.
const titleSimilarityThreshold = 0.5

// MergeContext carries the signals the merger passes into confidence
// scoring.
type MergeContext struct {
	TrustedSender bool
	OCRConfidence float64
	Timezone      string
}

// Merge combines deterministic and LLM draft lists into validated,
// confidence-scored events. Drafts sharing a 15-minute start bucket and
// a similar title are merged field-by-field with deterministic values
// winning; drafts failing validation are dropped.
func Merge(deterministic, llm []event.Draft, ctx MergeContext) []event.Draft {
	for i := range deterministic {
		deterministic[i].Method = event.MethodDeterministic
	}
	for i := range llm {
		llm[i].Method = event.MethodLLM
	}

	all := make([]event.Draft, 0, len(deterministic)+len(llm))
	all = append(all, deterministic...)
	all = append(all, llm...)

	// Deterministic order regardless of input order: source first, then
	// title, then start. Makes merging commutative for equal sources.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Method != all[j].Method {
			return all[i].Method == event.MethodDeterministic
		}
		if all[i].Title != all[j].Title {
			return all[i].Title < all[j].Title
		}
		return all[i].Start.Before(all[j].Start)
	})

	merged := mergeBuckets(all)

	out := make([]event.Draft, 0, len(merged))
	for _, d := range merged {
		valid, ok := validate(d, ctx.Timezone)
		if !ok {
			continue
		}
		valid.Confidence = Score(valid, ScoreContext{
			Method:        valid.Method,
			TrustedSender: ctx.TrustedSender,
			OCRConfidence: ctx.OCRConfidence,
		})
		out = append(out, valid)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// mergeBuckets groups drafts by start time floored to the bucket size
// (on the instant, not wall clock), then merges similar-titled drafts
// within each bucket.
func mergeBuckets(drafts []event.Draft) []event.Draft {
	buckets := make(map[int64][]event.Draft)
	var order []int64
	for _, d := range drafts {
		key := d.Start.Truncate(bucketSize).Unix()
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], d)
	}

	var out []event.Draft
	for _, key := range order {
		group := buckets[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		out = append(out, mergeSimilar(group)...)
	}
	return out
}

// mergeSimilar partitions a bucket into title-similar groups and merges
// each group into one draft.
func mergeSimilar(group []event.Draft) []event.Draft {
	var out []event.Draft
	used := make([]bool, len(group))
	for i := range group {
		if used[i] {
			continue
		}
		similar := []event.Draft{group[i]}
		used[i] = true
		for j := i + 1; j < len(group); j++ {
			if used[j] {
				continue
			}
			if titleJaccard(group[i].Title, group[j].Title) >= titleSimilarityThreshold {
				similar = append(similar, group[j])
				used[j] = true
			}
		}
		out = append(out, mergeGroup(similar))
	}
	return out
}

// titleJaccard computes Jaccard similarity over whitespace-split
// lowercase tokens.
func titleJaccard(a, b string) float64 {
	wordsA := tokenSet(a)
	wordsB := tokenSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	overlap := 0
	for w := range wordsA {
		if wordsB[w] {
			overlap++
		}
	}
	union := len(wordsA) + len(wordsB) - overlap
	return float64(overlap) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// mergeGroup folds a similar-group into its first draft. The group is
// already sorted deterministic-first, so the base keeps structured
// fields and later drafts only fill gaps. Labels union, reminders union
// by minutes, notes concatenate.
func mergeGroup(group []event.Draft) event.Draft {
	base := group[0]
	sources := map[event.Method]bool{base.Method: true}

	for _, d := range group[1:] {
		sources[d.Method] = true

		if base.End == nil {
			base.End = d.End
		}
		if base.Location == nil || *base.Location == "" {
			base.Location = d.Location
		}
		if base.OnlineURL == nil || *base.OnlineURL == "" {
			base.OnlineURL = d.OnlineURL
		}
		if base.Recurrence == nil || *base.Recurrence == "" {
			base.Recurrence = d.Recurrence
		}
		if base.Timezone == "" {
			base.Timezone = d.Timezone
		}
		if len(base.Attendees) == 0 {
			base.Attendees = d.Attendees
		}

		base.Labels = unionLabels(base.Labels, d.Labels)
		base.Reminders = unionReminders(base.Reminders, d.Reminders)

		if d.Notes != nil && *d.Notes != "" {
			if base.Notes == nil || *base.Notes == "" {
				base.Notes = d.Notes
			} else {
				base.Notes = event.StrPtr(*base.Notes + "\n" + *d.Notes)
			}
		}
	}

	if sources[event.MethodDeterministic] && sources[event.MethodLLM] {
		base.Method = event.MethodHybrid
	}
	return base
}

func unionLabels(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, l := range a {
		seen[l] = true
	}
	for _, l := range b {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func unionReminders(a, b []event.Reminder) []event.Reminder {
	seen := make(map[int]bool, len(a))
	out := append([]event.Reminder(nil), a...)
	for _, r := range a {
		seen[r.Minutes] = true
	}
	for _, r := range b {
		if !seen[r.Minutes] {
			seen[r.Minutes] = true
			out = append(out, r)
		}
	}
	return out
}

// validate enforces required fields and fills defaults exactly once.
// Returns false when the draft must be dropped.
func validate(d event.Draft, userTimezone string) (event.Draft, bool) {
	if len(strings.TrimSpace(d.Title)) < 2 {
		return d, false
	}
	if d.Start.IsZero() {
		return d, false
	}
	if d.End != nil && d.End.Before(d.Start) {
		d.End = nil
	}

	if d.Type != event.TypeEvent && d.Type != event.TypeTask {
		d.Type = event.TypeEvent
	}
	if d.Timezone == "" {
		if userTimezone != "" {
			d.Timezone = userTimezone
		} else {
			d.Timezone = defaultTimezone
		}
	}
	if d.Recurrence != nil && *d.Recurrence != "" {
		if _, err := rrule.StrToRRule(strings.TrimPrefix(*d.Recurrence, "RRULE:")); err != nil {
			d.Recurrence = nil
		}
	}
	if d.Attendees == nil {
		d.Attendees = []event.Attendee{}
	}
	if d.Reminders == nil {
		d.Reminders = []event.Reminder{}
	}
	if d.Labels == nil {
		d.Labels = []string{}
	}
	return d, true
}
