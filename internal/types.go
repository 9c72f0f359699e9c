package internal

type ConfidenceTier string

const (
	ConfidenceHigh      ConfidenceTier = "high"
	ConfidenceMedium    ConfidenceTier = "medium"
	ConfidenceLow       ConfidenceTier = "low"
	ConfidenceUnmatched ConfidenceTier = "unmatched"
)

type InputKind string

const (
	InputText InputKind = "text"
	InputHTML InputKind = "html"
	InputEML  InputKind = "eml"
	InputPDF  InputKind = "pdf"
	InputXLSX InputKind = "xlsx"
)

type CatalogItem struct {
	Code       string   `json:"item_code"`
	Name       string   `json:"item_name"`
	Category   string   `json:"category"`
	Brand      string   `json:"brand"`
	SourceFile string   `json:"source_file"`
	SheetName  string   `json:"sheet_name"`
	Synonyms   []string `json:"synonyms,omitempty"`
}

type ParsedLine struct {
	Description string
	Quantity    float64
}

// MappedItem carries Code, Name, Category and SimilarityScore only when
// Confidence is not ConfidenceUnmatched.
type MappedItem struct {
	OriginalText    string         `json:"original_text"`
	Code            *string        `json:"item_code"`
	Name            *string        `json:"item_name"`
	Category        *string        `json:"category"`
	Quantity        float64        `json:"quantity"`
	Confidence      ConfidenceTier `json:"confidence"`
	SimilarityScore *float64       `json:"similarity_score"`
}

type ProcessedOrder struct {
	TraceID          string       `json:"trace_id,omitempty"`
	MappedItems      []MappedItem `json:"mapped_items"`
	UnmappedItems    []string     `json:"unmapped_items"`
	TotalItems       int          `json:"total_items"`
	MappedCount      int          `json:"mapped_count"`
	UnmappedCount    int          `json:"unmapped_count"`
	ExportFilename   *string      `json:"csv_filename"`
	ProcessingTimeMs float64      `json:"processing_time_ms"`
}

type CatalogStats struct {
	TotalItems  int            `json:"total_items"`
	Categories  map[string]int `json:"categories"`
	SourceFiles map[string]int `json:"source_files"`
}

type CatalogSummary struct {
	TotalItems  int            `json:"total_items"`
	Categories  map[string]int `json:"categories"`
	SourceFiles []string       `json:"source_files"`
	ItemCodes   []string       `json:"item_codes"`
	ItemNames   []string       `json:"item_names"`
}

type MailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type OrderRunRow struct {
	ID             int
	TraceID        string
	MailID         *int
	TotalItems     int
	MappedCount    int
	UnmappedCount  int
	ExportFilename *string
	DurationMs     float64
	CreatedAt      string
}
