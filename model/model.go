package model

import "time"

type Form struct {
	ID          int            `json:"id,omitempty"`
	Version     int            `json:"version,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        string         `json:"type"` // signup, contact, multi_step
	Status      string         `json:"status"`
	Fields      []FormField    `json:"fields"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
}

type FormField struct {
	ID          int    `json:"id,omitempty"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	FullWidth   bool   `json:"full_width,omitempty"`
	Options     any    `json:"options"`
}

// Submission mirrors one multi-step round trip. It lives from the first step submit until
// the flow completes or is abandoned.
type Submission struct {
	ID         string            `json:"id"`
	FormID     int               `json:"form_id"`
	Step       int               `json:"step"`
	Data       map[string]string `json:"data"`
	CustomerID string            `json:"customer_id,omitempty"`
	AddressID  string            `json:"address_id,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	IP         string            `json:"ip,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type PopupEvent struct {
	ID        string    `json:"id"`
	PopupID   int       `json:"popup_id"`
	Event     string    `json:"event"` // display, interaction, close, conversion
	Action    string    `json:"action,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
