package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolKind is the closed set of capabilities the orchestrator may plan with.
type ToolKind int

const (
	KindSearch ToolKind = iota + 1
	KindExtract
	KindNavigateAPI
	KindSearchSite
	KindProcessData
)

var kindNames = map[ToolKind]string{
	KindSearch:      "search",
	KindExtract:     "extract",
	KindNavigateAPI: "navigate_api",
	KindSearchSite:  "search_site",
	KindProcessData: "process_data",
}

// AllKinds lists every ToolKind in catalog order.
func AllKinds() []ToolKind {
	return []ToolKind{KindSearch, KindExtract, KindNavigateAPI, KindSearchSite, KindProcessData}
}

func (k ToolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves a kind from its wire name.
func ParseKind(s string) (ToolKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

func (k ToolKind) MarshalJSON() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown tool kind %d", int(k))
	}
	return json.Marshal(k.String())
}

func (k *ToolKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseKind(s)
	if !ok {
		return fmt.Errorf("unknown tool kind %q", s)
	}
	*k = parsed
	return nil
}

// ToolCard describes one capability: what it accepts, what it yields and
// when the planner should reach for it.
type ToolCard struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Kind         ToolKind `json:"kind"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	InputFormats []string `json:"input_formats"`
	OutputFormat string   `json:"output_format"`
	BestFor      []string `json:"best_for"`
	Limitations  []string `json:"limitations"`
	Checksum     string   `json:"checksum,omitempty"`
	Signature    string   `json:"signature,omitempty"`
}

// DefaultToolCards returns the built-in catalog, one card per ToolKind.
func DefaultToolCards() []ToolCard {
	return []ToolCard{
		{
			Name: "SearXNG", Version: "v1", Kind: KindSearch,
			Description:  "Meta search engine used to discover sources",
			Capabilities: []string{"discover_sources", "web_search", "find_urls"},
			InputFormats: []string{"query_text"},
			OutputFormat: "list_of_urls",
			BestFor:      []string{"exploration", "discovery", "multiple_sources"},
			Limitations:  []string{"no_direct_content", "variable_quality"},
		},
		{
			Name: "WebExtractor", Version: "v1", Kind: KindExtract,
			Description:  "Headless browser page extraction",
			Capabilities: []string{"extract_content", "follow_links", "parse_html"},
			InputFormats: []string{"url"},
			OutputFormat: "structured_content",
			BestFor:      []string{"page_content", "articles", "documentation"},
			Limitations:  []string{"complex_sites", "heavy_javascript"},
		},
		{
			Name: "APINavigator", Version: "v1", Kind: KindNavigateAPI,
			Description:  "Calls documented HTTP APIs",
			Capabilities: []string{"call_apis", "parse_docs", "build_requests"},
			InputFormats: []string{"api_url", "query"},
			OutputFormat: "structured_data",
			BestFor:      []string{"rest_apis", "structured_data", "rankings"},
			Limitations:  []string{"needs_documentation", "complex_apis"},
		},
		{
			Name: "SearchSite", Version: "v1", Kind: KindSearchSite,
			Description:  "Uses a site's own search form",
			Capabilities: []string{"interactive_search", "forms", "navigation"},
			InputFormats: []string{"site_url", "query"},
			OutputFormat: "search_results",
			BestFor:      []string{"sites_with_search", "site_exploration"},
			Limitations:  []string{"sites_without_form", "slow"},
		},
		{
			Name: "DataProcessor", Version: "v1", Kind: KindProcessData,
			Description:  "Filters and aggregates collected records",
			Capabilities: []string{"filter", "sort", "group", "join", "transform"},
			InputFormats: []string{"list_of_records"},
			OutputFormat: "processed_data",
			BestFor:      []string{"post_processing", "aggregations", "cleaning"},
			Limitations:  []string{"needs_structured_data"},
		},
	}
}

// Registry holds validated ToolCards keyed by kind.
type Registry struct {
	tools map[ToolKind]ToolCard
}

// ErrToolMissing indicates a required tool is not registered.
var ErrToolMissing = fmt.Errorf("required tool missing")

// NewRegistry validates ToolCards and ensures required kinds exist. When
// signingSecret is empty signatures are not checked. An empty required list
// means every kind must be present.
func NewRegistry(cards []ToolCard, signingSecret string, required []ToolKind) (*Registry, error) {
	reg := &Registry{tools: make(map[ToolKind]ToolCard)}
	for _, tc := range cards {
		if err := ValidateToolCard(tc); err != nil {
			return nil, err
		}
		if err := validateSignature(tc, signingSecret); err != nil {
			return nil, fmt.Errorf("tool %s@%s signature invalid: %w", tc.Name, tc.Version, err)
		}
		existing, ok := reg.tools[tc.Kind]
		if !ok || versionGreater(tc.Version, existing.Version) {
			reg.tools[tc.Kind] = tc
		}
	}
	if len(required) == 0 {
		required = AllKinds()
	}
	for _, r := range required {
		if _, ok := reg.tools[r]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrToolMissing, r)
		}
	}
	return reg, nil
}

// NewDefaultRegistry builds a registry from DefaultToolCards, signing them
// with secret so the same validation path is exercised.
func NewDefaultRegistry(secret string) (*Registry, error) {
	cards := DefaultToolCards()
	if secret != "" {
		for i := range cards {
			signed, err := Sign(cards[i], secret)
			if err != nil {
				return nil, err
			}
			cards[i] = signed
		}
	}
	return NewRegistry(cards, secret, nil)
}

// Tool returns the ToolCard for a kind.
func (r *Registry) Tool(kind ToolKind) (ToolCard, bool) {
	if r == nil {
		return ToolCard{}, false
	}
	tc, ok := r.tools[kind]
	return tc, ok
}

// Cards returns the registered cards in kind order.
func (r *Registry) Cards() []ToolCard {
	if r == nil {
		return nil
	}
	out := make([]ToolCard, 0, len(r.tools))
	for _, tc := range r.tools {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// PromptDescription renders the catalog as JSON lines for planning prompts.
func (r *Registry) PromptDescription() string {
	type entry struct {
		Name    string   `json:"name"`
		Type    string   `json:"type"`
		BestFor []string `json:"best_for"`
		Output  string   `json:"output"`
	}
	var b strings.Builder
	for _, tc := range r.Cards() {
		raw, err := json.Marshal(entry{Name: tc.Name, Type: tc.Kind.String(), BestFor: tc.BestFor, Output: tc.OutputFormat})
		if err != nil {
			continue
		}
		b.Write(raw)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// ValidateToolCard checks the mandatory card fields.
func ValidateToolCard(tc ToolCard) error {
	if strings.TrimSpace(tc.Name) == "" {
		return fmt.Errorf("tool card name is required")
	}
	if strings.TrimSpace(tc.Version) == "" {
		return fmt.Errorf("tool card %s: version is required", tc.Name)
	}
	if _, ok := kindNames[tc.Kind]; !ok {
		return fmt.Errorf("tool card %s: unknown kind %d", tc.Name, int(tc.Kind))
	}
	if tc.OutputFormat == "" {
		return fmt.Errorf("tool card %s: output_format is required", tc.Name)
	}
	return nil
}

// ComputeChecksum returns a deterministic hash of the ToolCard payload
// excluding checksum and signature.
func ComputeChecksum(tc ToolCard) (string, error) {
	tc.Checksum = ""
	tc.Signature = ""
	normalized, err := json.Marshal(tc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignToolCard computes an HMAC signature using the signing secret.
func SignToolCard(tc ToolCard, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(tc)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign returns a copy of tc with checksum and signature populated.
func Sign(tc ToolCard, secret string) (ToolCard, error) {
	checksum, err := ComputeChecksum(tc)
	if err != nil {
		return tc, err
	}
	sig, err := SignToolCard(tc, secret)
	if err != nil {
		return tc, err
	}
	tc.Checksum = checksum
	tc.Signature = sig
	return tc, nil
}

func validateSignature(tc ToolCard, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignToolCard(tc, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(tc.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func versionGreater(a, b string) bool {
	if a == b {
		return false
	}
	return compareVersions(splitVersion(a), splitVersion(b)) > 0
}

func splitVersion(v string) []int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}

func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(a) {
			ai = a[i]
		}
		if i < len(b) {
			bi = b[i]
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}
