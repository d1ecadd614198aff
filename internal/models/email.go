package models

import "time"

type TemplateType string

const (
	TemplateVerifyEmail   TemplateType = "VERIFY_EMAIL"
	TemplateWelcomeEmail  TemplateType = "WELCOME_EMAIL"
	TemplatePasswordReset TemplateType = "PASSWORD_RESET"
	TemplateNewsletter    TemplateType = "NEWS_LETTER"
)

// Valid reports whether t is one of the known template types.
func (t TemplateType) Valid() bool {
	switch t {
	case TemplateVerifyEmail, TemplateWelcomeEmail, TemplatePasswordReset, TemplateNewsletter:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusPending MessageStatus = "PENDING"
	StatusSuccess MessageStatus = "SUCCESS"
	StatusFailure MessageStatus = "FAILURE"
)

// SendLogStatus labels a single delivery event. Events are independent,
// there is no transition table between them.
type SendLogStatus string

const (
	LogSendAttempt    SendLogStatus = "SEND_ATTEMPT"
	LogSendSuccess    SendLogStatus = "SEND_SUCCESS"
	LogSendFailure    SendLogStatus = "SEND_FAILURE"
	LogRetryScheduled SendLogStatus = "RETRY_SCHEDULED"
	LogRetryAttempt   SendLogStatus = "RETRY_ATTEMPT"
	LogRetrySuccess   SendLogStatus = "RETRY_SUCCESS"
	LogRetryFailure   SendLogStatus = "RETRY_FAILURE"
	LogCancelled      SendLogStatus = "CANCELLED"
)

type EmailTemplate struct {
	ID           string       `json:"id"`
	TemplateType TemplateType `json:"templateType"`
	TemplateName string       `json:"templateName"`
	Description  string       `json:"description,omitempty"`
	Subject      string       `json:"subject"`
	Body         string       `json:"body"`
	RetryMax     int          `json:"retryMax"`
	IsDeleted    bool         `json:"isDeleted"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PlaceholderMetadata struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type EmailPlaceholderBinding struct {
	ID            string    `json:"id"`
	TemplateID    string    `json:"templateId"`
	PlaceholderID string    `json:"placeholderId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type EmailMessage struct {
	ID          string        `json:"id"`
	Sender      string        `json:"sender"`
	Recipient   string        `json:"recipient"`
	TemplateID  string        `json:"templateId"`
	Subject     string        `json:"subject"`
	Content     string        `json:"content"`
	Status      MessageStatus `json:"status"`
	ScheduledAt *time.Time    `json:"scheduledAt,omitempty"`
	Attachments []string      `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type EmailSendLog struct {
	ID               string        `json:"id"`
	EmailMessageID   string        `json:"emailMessageId"`
	LogType          SendLogStatus `json:"logType"`
	SentAt           time.Time     `json:"sentAt"`
	RetryCount       int           `json:"retryCount"`
	RetryScheduledAt *time.Time    `json:"retryScheduledAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// ResolvedPlaceholder is a binding joined with the metadata it points at.
type ResolvedPlaceholder struct {
	Binding  EmailPlaceholderBinding `json:"binding"`
	Metadata PlaceholderMetadata     `json:"metadata"`
}

// InUseTemplate is the template selected for automated sends of one type,
// together with its placeholders.
type InUseTemplate struct {
	Template     EmailTemplate         `json:"template"`
	Placeholders []ResolvedPlaceholder `json:"placeholders"`
}
