package driven

import "context"

// LinkFetcher retrieves the readable text of a web page linked in trip chat.
type LinkFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchedPage, error)
}

// FetchedPage is the extracted article content of a page.
type FetchedPage struct {
	URL   string
	Title string
	Text  string
}
