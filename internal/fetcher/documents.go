package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is where the public-safety office uploads its daily logs.
const DefaultBaseURL = "https://dps.usc.edu/wp-content/uploads"

// DocumentURL builds the address of a day's log:
// {base}/{YYYY}/{MM}/{MMDDYY}.pdf.
func DocumentURL(base string, day time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%s.pdf",
		strings.TrimRight(base, "/"),
		day.Year(),
		int(day.Month()),
		day.Format("010206"),
	)
}

// Document is the outcome of fetching one day's log. Found is false when the
// publisher has no document for that day.
type Document struct {
	Day   time.Time
	URL   string
	Body  []byte
	Found bool
}

// Documents fetches daily logs from a base URL.
type Documents struct {
	fetcher Fetcher
	baseURL string
}

// NewDocuments creates a Documents source. An empty baseURL uses DefaultBaseURL.
func NewDocuments(f Fetcher, baseURL string) *Documents {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Documents{fetcher: f, baseURL: baseURL}
}

// Fetch retrieves the log for day. A non-200 response is not an error: it
// returns a Document with Found=false. Transport failures are returned as
// errors for the caller to decide on.
func (d *Documents) Fetch(ctx context.Context, day time.Time) (Document, error) {
	doc := Document{Day: day, URL: DocumentURL(d.baseURL, day)}

	body, err := d.fetcher.Download(ctx, doc.URL)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return doc, nil
		}
		return doc, eris.Wrapf(err, "fetcher: get %s", doc.URL)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return doc, eris.Wrapf(err, "fetcher: read %s", doc.URL)
	}

	doc.Body = data
	doc.Found = true
	return doc, nil
}
