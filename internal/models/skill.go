package models

// Skill protocol version 2.0 response envelope.

type SkillResponse struct {
	Version  string        `json:"version"`
	Template SkillTemplate `json:"template"`
}

type SkillTemplate struct {
	Outputs []SkillOutput `json:"outputs"`
}

type SkillOutput struct {
	Carousel   *Carousel   `json:"carousel,omitempty"`
	SimpleText *SimpleText `json:"simpleText,omitempty"`
}

type Carousel struct {
	Type  string      `json:"type"`
	Items []BasicCard `json:"items"`
}

type BasicCard struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Buttons     []Button `json:"buttons,omitempty"`
}

type Button struct {
	Action     string `json:"action"`
	Label      string `json:"label"`
	WebLinkURL string `json:"webLinkUrl,omitempty"`
}

type SimpleText struct {
	Text string `json:"text"`
}

// SkillPayload is the subset of the incoming skill request that is read.
// Every field is optional.
type SkillPayload struct {
	UserRequest struct {
		Utterance string `json:"utterance"`
		User      struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"userRequest"`
	Bot struct {
		ID string `json:"id"`
	} `json:"bot"`
}
