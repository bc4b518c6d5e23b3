package model

// WatchEntry is one instrument of a watchlist.
type WatchEntry struct {
	Label    string `yaml:"label"`
	Symbol   string `yaml:"symbol"`
	Category string `yaml:"category"`
}
