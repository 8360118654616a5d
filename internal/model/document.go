package model

// DocumentSource identifies where a loan document came from.
type DocumentSource string

const (
	DocSourceLoanSystem DocumentSource = "loan_system"
	DocSourceInbox      DocumentSource = "inbox"
)

// Document is one fetched loan document handed to extraction. Content
// marshals as base64, which is the wire shape the extraction service
// expects.
type Document struct {
	Name    string         `json:"name"`
	Source  DocumentSource `json:"source"`
	Content []byte         `json:"content,omitempty"`
}
