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

package core

const (
	identifierTypeDOI = "doi"
	linkTypeFullText  = "fulltext"
)

// Transform maps a raw source record into the canonical article schema.
//
// Transform never fails: every missing field degrades to an empty string or an
// empty (non-nil) slice. It does not retain references to slices owned by raw,
// so the result is safe to keep after raw is reused.
func Transform(raw RawRecord) Article {
	bib := raw.Bibjson
	if bib == nil {
		bib = &Bibjson{}
	}
	journal := bib.Journal
	if journal == nil {
		journal = &RawJournal{}
	}

	article := Article{
		Title:        bib.Title,
		Author:       make([]string, 0, len(bib.Author)),
		Affiliations: make([]*string, 0, len(bib.Author)),
		Source:       SourceName,
		UniqueID:     doi(bib.Identifier),
		Publisher:    bib.Publisher,
		Journal:      journal.Title,
		URLs:         make([]string, 0, len(bib.Link)),
		FullTextURLs: []string{},
		Volume:       string(journal.Volume),
		IssueNumber:  string(journal.Number),
		Keywords:     cloneStrings(bib.Keywords),
		Abstract:     bib.Abstract,
		Country:      journal.Country,
		ISSNs:        cloneStrings(bib.ISSNs),
		Subject:      make([]string, 0, len(bib.Subject)),
		Language:     cloneStrings(bib.Language),
		StartPage:    string(bib.StartPage),
		EndPage:      string(bib.EndPage),
		LastUpdated:  raw.LastUpdated,
		Month:        string(bib.Month),
		Year:         string(bib.Year),
		ID:           raw.ID,
		CreatedDate:  raw.CreatedDate,
	}

	if raw.Admin != nil {
		article.PublicationDate = raw.Admin.CreatedDate
	}

	// DOAJ nests the publisher inside the journal block
	if article.Publisher == "" {
		article.Publisher = journal.Publisher
	}

	if article.Journal == "" {
		article.Journal = bib.Title
	}

	for _, author := range bib.Author {
		article.Author = append(article.Author, author.Name)
		var affiliation *string
		if author.Affiliation != nil {
			value := *author.Affiliation
			affiliation = &value
		}
		article.Affiliations = append(article.Affiliations, affiliation)
	}

	for _, link := range bib.Link {
		article.URLs = append(article.URLs, link.URL)
		if link.Type == linkTypeFullText {
			article.FullTextURLs = append(article.FullTextURLs, link.URL)
		}
	}

	for _, subject := range bib.Subject {
		article.Subject = append(article.Subject, subject.Term)
	}

	return article
}

// doi returns the first DOI-typed identifier, or "" when there is none.
func doi(identifiers []RawIdentifier) string {
	for _, identifier := range identifiers {
		if identifier.Type == identifierTypeDOI {
			return identifier.ID
		}
	}
	return ""
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
