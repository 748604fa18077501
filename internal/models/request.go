package models

// SummarizeRequest is the body of the summarizer endpoint.
type SummarizeRequest struct {
	GithubURL string `json:"githubUrl"`
}

// SummarizeResponse is returned on a successful pipeline run.
type SummarizeResponse struct {
	ModelUsed     string        `json:"modelUsed"`
	ReadmeSource  string        `json:"readmeSource"`
	Summary       string        `json:"summary"`
	CoolFacts     []string      `json:"coolFacts"`
	ToolsUsed     []string      `json:"toolsUsed"`
	Stars         *int          `json:"stars"`
	LatestVersion string        `json:"latestVersion"`
	LicenseType   string        `json:"licenseType"`
	WebsiteURL    string        `json:"websiteUrl"`
	Usage         *UsageSummary `json:"usage,omitempty"`
}

// UsageSummary is the usage snapshot of the authenticated key.
type UsageSummary struct {
	KeyName         string `json:"keyName"`
	TotalRequests   int64  `json:"totalRequests"`
	LastUsed        string `json:"lastUsed,omitempty"`
	WindowLimit     int    `json:"windowLimit"`
	WindowRemaining int    `json:"windowRemaining"`
	WindowResetAt   string `json:"windowResetAt"`
}

// ValidateKeyResponse is returned by the key validation endpoint.
type ValidateKeyResponse struct {
	Valid bool          `json:"valid"`
	Key   *APIKey       `json:"key,omitempty"`
	Usage *UsageSummary `json:"usage,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Field             string `json:"field,omitempty"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	RequestID         string `json:"requestId,omitempty"`
}
