package model

// Submission is one analysis request as it arrives from the HTTP API or a batch file
type Submission struct {
	Kind               SubjectKind `json:"kind"`
	Text               string      `json:"text,omitempty"`
	SourcePlatform     string      `json:"source_platform,omitempty"`
	ContentType        string      `json:"content_type,omitempty"`
	URL                string      `json:"url,omitempty"`
	Name               string      `json:"name,omitempty"`
	RegistrationNumber string      `json:"registration_number,omitempty"`
}

// Subject returns a short description of the submission for logs and history
func (s Submission) Subject() string {
	switch s.Kind {
	case KindURL:
		return s.URL
	case KindAdvisor:
		if s.RegistrationNumber != "" {
			return s.RegistrationNumber
		}
		return s.Name
	default:
		if s.SourcePlatform != "" {
			return "text from " + s.SourcePlatform
		}
		return "text from unknown source"
	}
}
