// Package models defines the songbook documents exchanged with book sources.
//
// The JSON shapes are fixed contracts shared with the published book data;
// field names must not change.
package models

import (
	"fmt"
	"regexp"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// BookName carries the display names of a book.
type BookName struct {
	Short  string `json:"short"`
	Medium string `json:"medium"`
	Long   string `json:"long"`
}

// Validate checks that all name variants are present.
func (n BookName) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Short, validation.Required),
		validation.Field(&n.Medium, validation.Required),
		validation.Field(&n.Long, validation.Required),
	)
}

// BookSummary is the summary.json document of a book.
type BookSummary struct {
	Name           BookName `json:"name"`
	PrimaryColor   string   `json:"primaryColor"`
	SecondaryColor string   `json:"secondaryColor"`
	FileExtension  string   `json:"fileExtension"`
	NumOfSongs     int      `json:"numOfSongs"`
	AddOn          bool     `json:"addOn"`
	IndexAvailable bool     `json:"indexAvailable"`
	SrcURL         string   `json:"srcUrl,omitempty"`
}

// Validate checks the summary against the published schema.
func (s *BookSummary) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Name),
		validation.Field(&s.PrimaryColor, validation.Required, validation.Match(colorRe)),
		validation.Field(&s.SecondaryColor, validation.Required, validation.Match(colorRe)),
		validation.Field(&s.FileExtension, validation.Required),
		validation.Field(&s.NumOfSongs, validation.Min(0)),
	)
}

// Song is one entry of a song list. Number is a string because books use
// suffixed numbers such as "403a".
type Song struct {
	Title  string   `json:"title"`
	Number string   `json:"number,omitempty"`
	Notes  []string `json:"notes,omitempty"`
}

// Validate checks a single song entry.
func (s Song) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Title, validation.Required),
	)
}

// SongList maps a song number to its song: songs.json.
type SongList map[string]Song

// Validate checks every entry; errors are keyed by song number.
func (l SongList) Validate() error {
	errs := validation.Errors{}
	for number, song := range l {
		if number == "" {
			errs["(empty)"] = fmt.Errorf("song number must not be empty")
			continue
		}
		if err := song.Validate(); err != nil {
			errs[number] = err
		}
	}
	return errs.Filter()
}

// Numbers returns the song numbers in natural order ("2" < "10" < "10a").
func (l SongList) Numbers() []string {
	out := make([]string, 0, len(l))
	for n := range l {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return lessSongNumber(out[i], out[j]) })
	return out
}

// BookIndex maps a topical section label to its ordered song numbers: index.json.
type BookIndex map[string][]string

// Validate checks that sections are labelled and reference non-empty numbers.
func (x BookIndex) Validate() error {
	errs := validation.Errors{}
	for section, numbers := range x {
		if section == "" {
			errs["(empty)"] = fmt.Errorf("section label must not be empty")
			continue
		}
		for _, n := range numbers {
			if n == "" {
				errs[section] = fmt.Errorf("song number must not be empty")
				break
			}
		}
	}
	return errs.Filter()
}

// Sections returns the section labels sorted alphabetically.
func (x BookIndex) Sections() []string {
	out := make([]string, 0, len(x))
	for s := range x {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SongReference points at one song of one book; it is the bookmark format.
type SongReference struct {
	Book   string `json:"book"`
	Number string `json:"number"`
}

// Validate checks both halves of the reference.
func (r SongReference) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Book, validation.Required),
		validation.Field(&r.Number, validation.Required),
	)
}

// lessSongNumber orders by leading integer, then by suffix.
func lessSongNumber(a, b string) bool {
	na, sa := splitNumber(a)
	nb, sb := splitNumber(b)
	if na != nb {
		return na < nb
	}
	return sa < sb
}

func splitNumber(s string) (int, string) {
	n, i := 0, 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i == 0 {
		// Non-numeric labels sort after numeric ones.
		return int(^uint(0) >> 1), s
	}
	return n, s[i:]
}
