package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one song in the static catalog file.
type Entry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"`
}

// Catalog serves substring search over a song list loaded once from a
// local JSON file.
type Catalog struct {
	songs []Entry
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var songs []Entry
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &Catalog{songs: songs}, nil
}

func New(songs []Entry) *Catalog {
	return &Catalog{songs: songs}
}

// Search returns every entry whose title or artist contains the query,
// case-insensitively.
func (c *Catalog) Search(query string) []Entry {
	query = strings.ToLower(query)
	results := []Entry{}
	for _, s := range c.songs {
		if strings.Contains(strings.ToLower(s.Title), query) ||
			strings.Contains(strings.ToLower(s.Artist), query) {
			results = append(results, s)
		}
	}
	return results
}
