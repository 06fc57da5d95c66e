package model

type PopupType string

const (
	PopupModal       PopupType = "modal"
	PopupSidebar     PopupType = "sidebar"
	PopupBar         PopupType = "bar"
	PopupMultiStep   PopupType = "multi-step"
	PopupSplitScreen PopupType = "split-screen"
)

func (t PopupType) Valid() bool {
	switch t {
	case PopupModal, PopupSidebar, PopupBar, PopupMultiStep, PopupSplitScreen:
		return true
	}
	return false
}

// HasSteps reports whether the type renders a step container.
func (t PopupType) HasSteps() bool {
	return t == PopupMultiStep || t == PopupSplitScreen
}

type Popup struct {
	ID        int             `json:"id"`
	Version   int             `json:"version,omitempty"`
	Name      string          `json:"name"`
	Type      PopupType       `json:"type"`
	Status    string          `json:"status"`
	Design    Design          `json:"design"`
	Config    PopupContent    `json:"config"`
	Triggers  TriggerSettings `json:"triggers"`
	Targeting TargetingRules  `json:"targeting_rules"`
}

type Design struct {
	BackgroundType    string `json:"background_type,omitempty"` // color, gradient, image
	BackgroundColor   string `json:"background_color,omitempty"`
	GradientStart     string `json:"gradient_start,omitempty"`
	GradientEnd       string `json:"gradient_end,omitempty"`
	GradientDirection string `json:"gradient_direction,omitempty"`
	BackgroundImage   string `json:"background_image,omitempty"`

	TextColor       string `json:"text_color,omitempty"`
	FontFamily      string `json:"font_family,omitempty"`
	FontSize        string `json:"font_size,omitempty"`
	HeadingFontSize string `json:"heading_font_size,omitempty"`

	ButtonColor     string `json:"button_color,omitempty"`
	ButtonTextColor string `json:"button_text_color,omitempty"`
	ButtonRadius    string `json:"button_radius,omitempty"`

	Width        string `json:"width,omitempty"`
	MobileWidth  string `json:"mobile_width,omitempty"`
	Padding      string `json:"padding,omitempty"`
	BorderRadius string `json:"border_radius,omitempty"`
	OverlayColor string `json:"overlay_color,omitempty"`
	Position     string `json:"position,omitempty"` // sidebar: left/right, bar: top/bottom

	FieldStyle      string   `json:"field_style,omitempty"` // classic, underline, floating
	Layout          string   `json:"layout,omitempty"`      // single, two_column, inline
	FullWidthFields []string `json:"full_width_fields,omitempty"`

	// Raw style overrides keyed by camelCase CSS property name.
	Style map[string]string `json:"style,omitempty"`
}

type PopupContent struct {
	FormID         int         `json:"form_id,omitempty"`
	Content        string      `json:"content,omitempty"`
	Steps          []PopupStep `json:"steps,omitempty"`
	Blocks         []Block     `json:"blocks,omitempty"`
	AutoClose      bool        `json:"auto_close,omitempty"`
	AutoCloseDelay int         `json:"auto_close_delay,omitempty"` // seconds
}

type PopupStep struct {
	ID     string  `json:"id"`
	Title  string  `json:"title,omitempty"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	ID      string            `json:"id,omitempty"`
	Type    string            `json:"type"` // heading, text, image, button, form, spacer
	Content string            `json:"content,omitempty"`
	Level   int               `json:"level,omitempty"`
	URL     string            `json:"url,omitempty"`
	Action  string            `json:"action,omitempty"` // next, close, link
	FormID  int               `json:"form_id,omitempty"`
	Style   map[string]string `json:"style,omitempty"`
}

type TriggerType string

const (
	TriggerTimeDelay        TriggerType = "time_delay"
	TriggerScrollPercentage TriggerType = "scroll_percentage"
	TriggerExitIntent       TriggerType = "exit_intent"
	TriggerPageViews        TriggerType = "page_views"
	TriggerSessionTime      TriggerType = "session_time"
	TriggerClick            TriggerType = "click_trigger"
)

type TriggerSettings struct {
	Type          TriggerType `json:"type"`
	Delay         int         `json:"delay,omitempty"`      // seconds
	Percentage    int         `json:"percentage,omitempty"` // 0-100
	Count         int         `json:"count,omitempty"`      // page views
	Minutes       float64     `json:"minutes,omitempty"`    // session time
	Selector      string      `json:"selector,omitempty"`   // click trigger
	MobileEnabled *bool       `json:"mobile_enabled,omitempty"`
	// Extra delay in seconds between exit intent detection and display.
	ExitDelay int `json:"exit_delay,omitempty"`
}

// IsMobileEnabled defaults to true when the flag is absent.
func (t TriggerSettings) IsMobileEnabled() bool {
	return t.MobileEnabled == nil || *t.MobileEnabled
}

type TargetingRules struct {
	Devices     []string `json:"devices,omitempty"` // desktop, mobile; empty means all
	IncludeURLs []string `json:"include_urls,omitempty"`
	ExcludeURLs []string `json:"exclude_urls,omitempty"`
	// Maximum number of displays across sessions; 0 means unlimited.
	MaxDisplays int `json:"max_displays,omitempty"`
}
