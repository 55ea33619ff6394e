package models

import "time"

// PromptTemplate is a reusable meta-prompt for generating a position's call
// prompts. Templates are grouped by category; each category points at exactly
// one active template via PromptCategory.ActiveTemplateID.
type PromptTemplate struct {
	ID         int64     `json:"id"`
	CategoryID int64     `json:"categoryId"`
	Name       string    `json:"name"`
	MetaPrompt string    `json:"metaPrompt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PromptCategory holds the single active-template pointer per category.
// Activation swaps the pointer in one transaction; there is no free-floating
// "active" boolean on templates.
type PromptCategory struct {
	ID               int64  `json:"id"`
	Key              string `json:"key"`
	ActiveTemplateID *int64 `json:"activeTemplateId"`
}
