package core

//go:generate go run ../cmd/musgen

import (
	"bytes"
	"encoding/json"
	"time"
)

// SourceName identifies the provenance of every article produced by Transform.
const SourceName = "DOAJ"

// Category is a name from the configured category catalog.
type Category string

// RawRecord is a single article as returned by the source API.
// Every field is optional; absent fields decode to their zero value.
type RawRecord struct {
	ID          string    `json:"id"`
	CreatedDate string    `json:"created_date"`
	LastUpdated string    `json:"last_updated"`
	Admin       *RawAdmin `json:"admin"`
	Bibjson     *Bibjson  `json:"bibjson"`
}

// RawAdmin holds administrative metadata of a raw record.
type RawAdmin struct {
	CreatedDate string `json:"created_date"`
}

// Bibjson is the bibliographic part of a raw record.
type Bibjson struct {
	Title      string          `json:"title"`
	Abstract   string          `json:"abstract"`
	Author     []RawAuthor     `json:"author"`
	Identifier []RawIdentifier `json:"identifier"`
	Link       []RawLink       `json:"link"`
	Journal    *RawJournal     `json:"journal"`
	Publisher  string          `json:"publisher"`
	Keywords   []string        `json:"keywords"`
	ISSNs      []string        `json:"issns"`
	Subject    []RawSubject    `json:"subject"`
	Language   []string        `json:"language"`
	StartPage  Text            `json:"start_page"`
	EndPage    Text            `json:"end_page"`
	Month      Text            `json:"month"`
	Year       Text            `json:"year"`
}

// Text is a string field the source does not type consistently.
// It accepts JSON strings, numbers and booleans verbatim; null and any other
// shape decode to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 't', 'f':
		*t = Text(data)
	default:
		*t = ""
	}
	return nil
}

// RawAuthor is an author entry. Affiliation is nil when the source omits it.
type RawAuthor struct {
	Name        string  `json:"name"`
	Affiliation *string `json:"affiliation"`
}

// RawIdentifier is a typed identifier such as a DOI or an eISSN.
type RawIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RawLink is a typed link such as the full text location.
type RawLink struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// RawJournal describes the journal an article appeared in.
type RawJournal struct {
	Title     string `json:"title"`
	Volume    Text   `json:"volume"`
	Number    Text   `json:"number"`
	Country   string `json:"country"`
	Publisher string `json:"publisher"`
}

// RawSubject is a subject classification term.
type RawSubject struct {
	Term string `json:"term"`
}

// Article is the canonical, persisted shape of an article.
// Articles are created by Transform and never mutated afterwards.
type Article struct {
	Title           string    `bson:"title" json:"title"`
	Author          []string  `bson:"author" json:"author"`
	Affiliations    []*string `bson:"affiliations" json:"affiliations"`
	PublicationDate string    `bson:"publicationDate" json:"publicationDate"`
	Source          string    `bson:"source" json:"source"`
	UniqueID        string    `bson:"uniqueID" json:"uniqueID"`
	Publisher       string    `bson:"publisher" json:"publisher"`
	Journal         string    `bson:"journal" json:"journal"`
	URLs            []string  `bson:"URLs" json:"URLs"`
	FullTextURLs    []string  `bson:"fullTextURLs" json:"fullTextURLs"`
	Volume          string    `bson:"volume" json:"volume"`
	IssueNumber     string    `bson:"issueNumber" json:"issueNumber"`
	Keywords        []string  `bson:"keywords" json:"keywords"`
	Abstract        string    `bson:"abstract" json:"abstract"`
	Country         string    `bson:"country" json:"country"`
	ISSNs           []string  `bson:"issns" json:"issns"`
	Subject         []string  `bson:"subject" json:"subject"`
	Language        []string  `bson:"language" json:"language"`
	StartPage       string    `bson:"startPage" json:"startPage"`
	EndPage         string    `bson:"endPage" json:"endPage"`
	LastUpdated     string    `bson:"lastUpdated" json:"lastUpdated"`
	Month           string    `bson:"month" json:"month"`
	Year            string    `bson:"year" json:"year"`
	ID              string    `bson:"id" json:"id"`
	CreatedDate     string    `bson:"createdDate" json:"createdDate"`
}

// Cursor records the last page fully processed for a category.
type Cursor struct {
	Category  Category
	Page      int
	UpdatedAt time.Time // When the cursor was last advanced
}

// Next returns the first page that has not been processed yet.
func (c Cursor) Next() int {
	return c.Page + 1
}
