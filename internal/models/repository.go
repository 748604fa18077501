package models

// Sentinels used in place of missing metadata fields.
const (
	NotAvailable = "Not available"
	NotSpecified = "Not specified"
)

// RepositoryCoordinates identifies a hosted repository.
type RepositoryCoordinates struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns owner/name.
func (c RepositoryCoordinates) String() string {
	return c.Owner + "/" + c.Name
}

// ReadmeResult is the first README found for a repository.
type ReadmeResult struct {
	SourceURL string `json:"sourceUrl"`
	Text      string `json:"text"`
}

// RepositoryMetadata holds best-effort repository facts.
type RepositoryMetadata struct {
	Stars         int    `json:"stars"`
	LatestVersion string `json:"latestVersion"`
	LicenseType   string `json:"licenseType"`
	WebsiteURL    string `json:"websiteUrl"`
}

// Summary is the structured output of the summarization collaborator.
type Summary struct {
	Model     string   `json:"-"`
	Summary   string   `json:"summary"`
	CoolFacts []string `json:"cool_facts"`
	ToolsUsed []string `json:"tools_used"`
}
