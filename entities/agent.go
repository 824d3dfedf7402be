package entities

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AgentManifest is the user-editable part of an agent.
type AgentManifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Model       string   `json:"model,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	Alias       string   `json:"alias,omitempty"`
}

// Agent is an agent as stored by the platform.
type Agent struct {
	Metadata
	AgentManifest
	AliasAssigned bool `json:"aliasAssigned,omitempty"`
}

func (m AgentManifest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Alias, validation.Match(slugPattern).Error("must be lowercase letters, digits and dashes")),
		validation.Field(&m.Tools, validation.Each(validation.Required)),
	)
}
