package entities

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// EmailReceiverManifest is the user-editable part of an email receiver.
// WorkflowName is the workflow that receives the inbound mail.
type EmailReceiverManifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	User           string   `json:"user"`
	WorkflowName   string   `json:"workflowName"`
	AllowedSenders []string `json:"allowedSenders,omitempty"`
}

// EmailReceiver is an email receiver as stored by the platform.
type EmailReceiver struct {
	Metadata
	EmailReceiverManifest
	EmailAddress string `json:"emailAddress,omitempty"`
}

func (m EmailReceiverManifest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.User, validation.Required, validation.Match(slugPattern)),
		validation.Field(&m.WorkflowName, validation.Required),
		validation.Field(&m.AllowedSenders, validation.Each(is.EmailFormat)),
	)
}
