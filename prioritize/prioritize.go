// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package prioritize orders article batches so that articles from reputed
// publishers and journals are submitted to storage first.
//
// Reputation is used for ordering only, never for filtering: every article
// of the input batch appears exactly once in the output.
package prioritize

import (
	"slices"

	"github.com/poiesic/doajsync/core"
)

// Prioritizer ranks articles against configured allow-lists.
// A Prioritizer is immutable after construction and safe for concurrent use.
type Prioritizer struct {
	publishers map[string]struct{}
	journals   map[string]struct{}
}

// New creates a Prioritizer from reputed publisher and journal names.
// Names are matched exactly.
func New(publishers, journals []string) *Prioritizer {
	return &Prioritizer{
		publishers: toSet(publishers),
		journals:   toSet(journals),
	}
}

// Prioritize returns a copy of batch ordered by reputation.
//
// Articles from a reputed publisher come first; within each publisher group,
// articles whose journal is reputed come first. The sort is stable so ties
// keep their input order.
func (p *Prioritizer) Prioritize(batch []core.Article) []core.Article {
	ordered := slices.Clone(batch)
	slices.SortStableFunc(ordered, func(a, b core.Article) int {
		return p.rank(a) - p.rank(b)
	})
	return ordered
}

// IsReputedPublisher reports whether name is in the reputed publisher set.
func (p *Prioritizer) IsReputedPublisher(name string) bool {
	_, ok := p.publishers[name]
	return ok
}

// IsReputedJournal reports whether name is in the reputed journal set.
func (p *Prioritizer) IsReputedJournal(name string) bool {
	_, ok := p.journals[name]
	return ok
}

// IsReputed reports whether either the publisher or the journal of the article is reputed.
func (p *Prioritizer) IsReputed(article core.Article) bool {
	return p.IsReputedPublisher(article.Publisher) || p.IsReputedJournal(article.Journal)
}

// rank maps an article to its ordering bucket; lower sorts first.
// Publisher reputation dominates, journal reputation breaks ties.
func (p *Prioritizer) rank(article core.Article) int {
	rank := 0
	if !p.IsReputedPublisher(article.Publisher) {
		rank += 2
	}
	if !p.IsReputedJournal(article.Journal) {
		rank++
	}
	return rank
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
