package research

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

type SourceType string

const (
	SourceAPIRest      SourceType = "api_rest"
	SourceAPIGraphQL   SourceType = "api_graphql"
	SourceWebsite      SourceType = "website"
	SourceDataset      SourceType = "dataset"
	SourceSearchEngine SourceType = "search_engine"
)

type SourceStatus string

const (
	StatusSuccess                SourceStatus = "success"
	StatusFailed                 SourceStatus = "failed"
	StatusDiscoveredNotUsed      SourceStatus = "discovered_not_used"
	StatusAuthenticationRequired SourceStatus = "authentication_required"
	StatusTimeout                SourceStatus = "timeout"
	StatusPartial                SourceStatus = "partial"
)

type SourcePriority string

const (
	PriorityRequired       SourcePriority = "required"
	PrioritySuggested      SourcePriority = "suggested"
	PriorityProvided       SourcePriority = "provided"
	PriorityAutoDiscovered SourcePriority = "auto_discovered"
	PriorityComplementary  SourcePriority = "complementary"
)

// SourceEntry is one URL-addressable source touched by a run.
type SourceEntry struct {
	URL              string         `json:"url"`
	Type             SourceType     `json:"type"`
	Status           SourceStatus   `json:"status"`
	Priority         SourcePriority `json:"priority,omitempty"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	ContentLength    int            `json:"content_length,omitempty"`
	RecordsRetrieved int            `json:"records_retrieved,omitempty"`
	Reason           string         `json:"reason,omitempty"`
}

// SearchEngineEntry records one search query.
type SearchEngineEntry struct {
	Engines      []string `json:"engines"`
	Query        string   `json:"query"`
	ResultsFound int      `json:"results_found"`
}

// SourceRegistry indexes every source a run touched. It is used for
// reporting only and never drives control flow.
type SourceRegistry struct {
	mu            sync.Mutex
	apis          []*SourceEntry
	websites      []*SourceEntry
	datasets      []*SourceEntry
	searchEngines []SearchEngineEntry
	byURL         map[string]*SourceEntry // keyed by helpers.URLKey
}

func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{byURL: make(map[string]*SourceEntry)}
}

// Add records a source. A URL already present, up to canonical form, keeps
// its entry; the priority is upgraded when the new one ranks higher.
func (r *SourceRegistry) Add(e SourceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := helpers.URLKey(e.URL)
	if existing, ok := r.byURL[key]; ok {
		if priorityRank(e.Priority) < priorityRank(existing.Priority) {
			existing.Priority = e.Priority
		}
		return
	}
	entry := e
	switch e.Type {
	case SourceAPIRest, SourceAPIGraphQL:
		r.apis = append(r.apis, &entry)
	case SourceDataset:
		r.datasets = append(r.datasets, &entry)
	default:
		entry.Type = SourceWebsite
		r.websites = append(r.websites, &entry)
	}
	r.byURL[key] = &entry
}

func (r *SourceRegistry) AddSearchEngine(engines []string, query string, results int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchEngines = append(r.searchEngines, SearchEngineEntry{Engines: append([]string(nil), engines...), Query: query, ResultsFound: results})
}

// UpdateStatus changes the status of a known source and reports whether it
// was found.
func (r *SourceRegistry) UpdateStatus(u string, status SourceStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byURL[helpers.URLKey(u)]
	if !ok {
		return false
	}
	e.Status = status
	return true
}

// Update applies fn to a known source.
func (r *SourceRegistry) Update(u string, fn func(*SourceEntry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byURL[helpers.URLKey(u)]
	if !ok {
		return false
	}
	fn(e)
	return true
}

func (r *SourceRegistry) Get(u string) (SourceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byURL[helpers.URLKey(u)]
	if !ok {
		return SourceEntry{}, false
	}
	return *e, true
}

// AllSources groups sources by kind, omitting empty groups.
type AllSources struct {
	APIs          []SourceEntry       `json:"apis,omitempty"`
	Websites      []SourceEntry       `json:"websites,omitempty"`
	Datasets      []SourceEntry       `json:"datasets,omitempty"`
	SearchEngines []SearchEngineEntry `json:"search_engines,omitempty"`
}

func (r *SourceRegistry) GetAllSources() AllSources {
	r.mu.Lock()
	defer r.mu.Unlock()
	return AllSources{
		APIs:          copyEntries(r.apis),
		Websites:      copyEntries(r.websites),
		Datasets:      copyEntries(r.datasets),
		SearchEngines: append([]SearchEngineEntry(nil), r.searchEngines...),
	}
}

type SourceStatistics struct {
	TotalAPIs             int `json:"total_apis"`
	APIsSuccessful        int `json:"apis_successful"`
	APIsFailed            int `json:"apis_failed"`
	TotalWebsites         int `json:"total_websites"`
	WebsitesSuccessful    int `json:"websites_successful"`
	WebsitesFailed        int `json:"websites_failed"`
	TotalDatasets         int `json:"total_datasets"`
	TotalSearchQueries    int `json:"total_search_queries"`
	TotalRecordsRetrieved int `json:"total_records_retrieved"`
}

func (r *SourceRegistry) Statistics() SourceStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := SourceStatistics{
		TotalAPIs:          len(r.apis),
		TotalWebsites:      len(r.websites),
		TotalDatasets:      len(r.datasets),
		TotalSearchQueries: len(r.searchEngines),
	}
	for _, a := range r.apis {
		switch a.Status {
		case StatusSuccess:
			s.APIsSuccessful++
		case StatusFailed:
			s.APIsFailed++
		}
		s.TotalRecordsRetrieved += a.RecordsRetrieved
	}
	for _, w := range r.websites {
		switch w.Status {
		case StatusSuccess:
			s.WebsitesSuccessful++
		case StatusFailed:
			s.WebsitesFailed++
		}
	}
	for _, d := range r.datasets {
		s.TotalRecordsRetrieved += d.RecordsRetrieved
	}
	return s
}

// HasRequiredSourcesSucceeded reports whether every required source ended
// in success. It is vacuously true without required sources.
func (r *SourceRegistry) HasRequiredSourcesSucceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byURL {
		if e.Priority == PriorityRequired && e.Status != StatusSuccess {
			return false
		}
	}
	return true
}

func copyEntries(in []*SourceEntry) []SourceEntry {
	if len(in) == 0 {
		return nil
	}
	out := make([]SourceEntry, len(in))
	for i, e := range in {
		out[i] = *e
	}
	return out
}

func priorityRank(p SourcePriority) int {
	switch p {
	case PriorityRequired:
		return 0
	case PrioritySuggested:
		return 1
	case PriorityProvided:
		return 2
	case PriorityComplementary:
		return 3
	case PriorityAutoDiscovered:
		return 4
	default:
		return 5
	}
}

// SourceConstraints restricts which discovered URLs may be extracted.
type SourceConstraints struct {
	Required   []string
	Suggested  []string
	Exclusions []string
	Whitelist  []string
}

// Allowed reports whether a discovered URL passes exclusions and the domain
// whitelist. Exclusions match hosts, or full URLs when the pattern carries a
// path; '*' matches any run of characters.
func (c SourceConstraints) Allowed(raw string) bool {
	for _, pattern := range c.Exclusions {
		if matchExclusion(raw, pattern) {
			return false
		}
	}
	if len(c.Whitelist) == 0 {
		return true
	}
	for _, domain := range c.Whitelist {
		if helpers.HostMatches(raw, domain) {
			return true
		}
	}
	return false
}

func matchExclusion(raw, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "/") {
		if strings.HasPrefix(pattern, "*.") || !strings.Contains(pattern, "*") {
			return helpers.HostMatches(raw, pattern)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return false
		}
		return wildcardMatch(strings.ToLower(pattern), strings.ToLower(u.Hostname()))
	}
	target := strings.ToLower(raw)
	if !strings.Contains(pattern, "://") {
		target = strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "http://")
		target = strings.TrimPrefix(target, "www.")
	}
	p := strings.ToLower(pattern)
	if !strings.HasSuffix(p, "*") {
		p += "*"
	}
	return wildcardMatch(p, target)
}

func wildcardMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
