package entities

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// WorkflowStep is one step of a workflow definition.
type WorkflowStep struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Step string `json:"step"`
}

// WorkflowManifest is the user-editable part of a workflow.
type WorkflowManifest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Alias       string         `json:"alias,omitempty"`
	Steps       []WorkflowStep `json:"steps,omitempty"`
}

// Workflow is a workflow as stored by the platform.
type Workflow struct {
	Metadata
	WorkflowManifest
}

func (m WorkflowManifest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Alias, validation.Match(slugPattern).Error("must be lowercase letters, digits and dashes")),
	)
}

func (s WorkflowStep) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Step, validation.Required),
	)
}
