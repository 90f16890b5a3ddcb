package console

import "errors"

// Page is one of the console's top-level views.
type Page string

const (
	PageDashboard Page = "dashboard"
	PageKeys      Page = "keys"
	PageModels    Page = "models"
	PageStats     Page = "stats"
	PageChat      Page = "chat"
)

// Pages lists every page in navigation order.
var Pages = []Page{PageDashboard, PageKeys, PageModels, PageStats, PageChat}

// ErrUnknownPage is returned by Navigate for a page outside Pages.
var ErrUnknownPage = errors.New("console: unknown page")

var pageTitles = map[Page]string{
	PageDashboard: "Dashboard",
	PageKeys:      "Keys",
	PageModels:    "Models",
	PageStats:     "Statistics",
	PageChat:      "Chat",
}

// ParsePage validates a page name.
func ParsePage(name string) (Page, error) {
	p := Page(name)
	if _, ok := pageTitles[p]; !ok {
		return "", ErrUnknownPage
	}
	return p, nil
}

// Title returns the navigation label.
func (p Page) Title() string { return pageTitles[p] }

// NavItem is one navigation link.
type NavItem struct {
	Page   Page
	Title  string
	Active bool
}

// Nav returns the navigation with exactly current marked active.
func Nav(current Page) []NavItem {
	items := make([]NavItem, 0, len(Pages))
	for _, p := range Pages {
		items = append(items, NavItem{Page: p, Title: p.Title(), Active: p == current})
	}
	return items
}
