package bridge

// Action types understood by the browsing surface.
const (
	// navigation
	ActionNavigate        = "navigate"
	ActionNavigateAndWait = "navigate_and_wait"

	// content extraction
	ActionScrapeSummary  = "scrape_summary"
	ActionScrapeHTML     = "scrape_html"
	ActionScrapeLinks    = "scrape_links"
	ActionScrapeMetadata = "scrape_metadata"

	// interaction
	ActionClick  = "click"
	ActionType   = "type"
	ActionSubmit = "submit"
	ActionKey    = "key"
	ActionScroll = "scroll"

	// utility
	ActionEval    = "eval"
	ActionWaitFor = "wait_for_selector"
	ActionWait    = "wait"
)

// NavigatePayload opens a URL in the surface.
type NavigatePayload struct {
	URL string `json:"url"`
}

// ScrapePayload selects the part of the page to extract.
// An empty selector means the whole document.
type ScrapePayload struct {
	Selector string `json:"selector,omitempty"`
	MaxChars int    `json:"maxChars,omitempty"`
}

// ClickPayload targets an element by selector, by visible text, or by
// coordinates. The first non-empty target wins.
type ClickPayload struct {
	Selector string   `json:"selector,omitempty"`
	Text     string   `json:"text,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

// TypePayload types text into a field.
type TypePayload struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Clear    bool   `json:"clear"`
}

// SubmitPayload submits the form containing selector, or the focused form.
type SubmitPayload struct {
	Selector string `json:"selector,omitempty"`
}

// KeyPayload dispatches a key press.
type KeyPayload struct {
	Key      string `json:"key"`
	Selector string `json:"selector,omitempty"`
}

// ScrollPayload scrolls by an offset, or to an element when Selector is set.
type ScrollPayload struct {
	DX       int    `json:"dx,omitempty"`
	DY       int    `json:"dy,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// EvalPayload runs a script and returns its value.
type EvalPayload struct {
	Script string `json:"script"`
}

// WaitForPayload waits for a selector to appear.
type WaitForPayload struct {
	Selector  string `json:"selector"`
	TimeoutMS int    `json:"timeoutMs"`
}

// WaitPayload pauses the surface for a fixed duration.
type WaitPayload struct {
	MS int `json:"ms"`
}
