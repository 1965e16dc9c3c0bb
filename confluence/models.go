package confluence

// Page is a Confluence content object.
type Page struct {
	ID      string   `json:"id,omitempty"`
	Type    string   `json:"type"`
	Status  string   `json:"status,omitempty"`
	Title   string   `json:"title"`
	Space   *Space   `json:"space,omitempty"`
	Body    *Body    `json:"body,omitempty"`
	Version *Version `json:"version,omitempty"`
	Links   *Links   `json:"_links,omitempty"`
}

type Space struct {
	Key string `json:"key"`
}

type Body struct {
	Storage *Storage `json:"storage,omitempty"`
}

// Storage is page content in the Confluence storage representation.
type Storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type Version struct {
	Number  int    `json:"number"`
	Message string `json:"message,omitempty"`
}

type Links struct {
	WebUI string `json:"webui,omitempty"`
	Base  string `json:"base,omitempty"`
}

// WebURL is the browsable address of the page, empty when links are
// not expanded.
func (p *Page) WebURL() string {
	if p.Links == nil {
		return ""
	}
	return p.Links.Base + p.Links.WebUI
}

type searchResponse struct {
	Results []Page `json:"results"`
	Size    int    `json:"size"`
}
