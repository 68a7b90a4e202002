package demoserver

import "time"

// SiteOrigin is the live site the demo archive pretends to have crawled.
const SiteOrigin = "https://demo.example.gov"

const (
	SourceCode = "demo"
	SourceName = "Demo Agency"
)

// Capture is one archived copy of a page inside an edition.
type Capture struct {
	Timestamp string // 14-digit
	HTML      string
	MimeType  string
}

// PageDefinition holds every capture of a single page, keyed by edition id.
type PageDefinition struct {
	Path        string
	Description string
	Captures    map[int64]Capture
}

// EditionDefinition describes one capture batch of the demo source.
type EditionDefinition struct {
	ID    int64
	Name  string
	Entry string // page path used as the entry page; empty for none
}

// URL is the page's logical URL.
func (p PageDefinition) URL() string { return SiteOrigin + p.Path }

// GetAllEditions returns the demo editions, oldest first.
func GetAllEditions() []EditionDefinition {
	return []EditionDefinition{
		{ID: 1, Name: "2023 crawl", Entry: "/"},
		{ID: 2, Name: "2024 crawl", Entry: "/"},
		{ID: 3, Name: "2025 crawl", Entry: "/"},
		// Partial re-crawl without a usable entry page: switches into it
		// fall through to the timegate.
		{ID: 4, Name: "2025 contact refresh"},
	}
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		getHomePage(),
		getAboutPage(),
		getContactPage(),
		getNewsPage(),
	}
}

func captureTime(ts string) time.Time {
	t, _ := time.Parse("20060102150405", ts)
	return t
}

// ===== HOME PAGE =====
func getHomePage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Home page, captured in every full crawl",
		Captures: map[int64]Capture{
			1: {Timestamp: "20230315093000", HTML: `<!DOCTYPE html>
<html>
<head><title>Demo Agency - Home (2023)</title></head>
<body>
    <h1>Welcome to the Demo Agency</h1>
    <nav>
        <a href="https://demo.example.gov/about">About</a> |
        <a href="https://demo.example.gov/contact">Contact</a>
    </nav>
    <p>Serving the public since 1999.</p>
</body>
</html>`},
			2: {Timestamp: "20240412120000", HTML: `<!DOCTYPE html>
<html>
<head><title>Demo Agency - Home (2024)</title></head>
<body>
    <h1>Demo Agency</h1>
    <nav>
        <a href="https://demo.example.gov/about">About us</a> |
        <a href="https://demo.example.gov/news/2024">News</a>
    </nav>
    <p>Our new website is live.</p>
</body>
</html>`},
			3: {Timestamp: "20250120081500", HTML: `<!DOCTYPE html>
<html>
<head><title>Demo Agency - Home (2025)</title></head>
<body>
    <h1>Demo Agency</h1>
    <nav>
        <a href="https://demo.example.gov/news/2024">News archive</a>
    </nav>
    <p>The About page has moved to our annual report.</p>
</body>
</html>`},
		},
	}
}

// ===== ABOUT PAGE =====
func getAboutPage() PageDefinition {
	return PageDefinition{
		Path:        "/about",
		Description: "Removed in 2025; switching to edition 3 lands on the entry page",
		Captures: map[int64]Capture{
			1: {Timestamp: "20230315093500", HTML: `<!DOCTYPE html>
<html>
<head><title>About the Demo Agency</title></head>
<body>
    <h1>About</h1>
    <p>The agency was founded to demonstrate web archives.</p>
    <a href="https://demo.example.gov/">Home</a>
</body>
</html>`},
			// No <title>: the page data falls back to raw content parsing
			// and finds nothing, so the URL is shown instead.
			2: {Timestamp: "20240412121000", HTML: `<!DOCTYPE html>
<html>
<head></head>
<body>
    <h1>About us</h1>
    <p>Mandate, leadership and history.</p>
    <a href="https://demo.example.gov/">Home</a>
</body>
</html>`},
		},
	}
}

// ===== CONTACT PAGE =====
func getContactPage() PageDefinition {
	return PageDefinition{
		Path:        "/contact",
		Description: "Missing from 2024 and 2025 full crawls, refreshed in edition 4",
		Captures: map[int64]Capture{
			1: {Timestamp: "20230315094000", HTML: `<!DOCTYPE html>
<html>
<head><title>Contact the Demo Agency</title></head>
<body>
    <h1>Contact</h1>
    <p>Call 1-800-DEMO.</p>
</body>
</html>`},
			4: {Timestamp: "20250601100000", HTML: `<!DOCTYPE html>
<html>
<head><title>Contact us</title></head>
<body>
    <h1>Contact us</h1>
    <p>Use the online form.</p>
</body>
</html>`},
		},
	}
}

// ===== NEWS PAGE =====
func getNewsPage() PageDefinition {
	return PageDefinition{
		Path:        "/news/2024",
		Description: "Added in 2024",
		Captures: map[int64]Capture{
			2: {Timestamp: "20240412122000", HTML: `<!DOCTYPE html>
<html>
<head><title>News 2024</title></head>
<body>
    <h1>News</h1>
    <ul><li>New website launched</li></ul>
</body>
</html>`},
			3: {Timestamp: "20250120082000", HTML: `<!DOCTYPE html>
<html>
<head><title>News archive: 2024</title></head>
<body>
    <h1>News archive</h1>
    <ul><li>New website launched</li><li>Annual report published</li></ul>
</body>
</html>`},
		},
	}
}
