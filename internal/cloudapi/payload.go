package cloudapi

import "fmt"

const messagingProduct = "whatsapp"

// SendRequest is the JSON body of POST /{phone-number-id}/messages.
type SendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *TextPayload     `json:"text,omitempty"`
	Template         *TemplatePayload `json:"template,omitempty"`
}

// TextPayload is the text object of a send request.
type TextPayload struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

// TemplatePayload is the template object of a send request.
type TemplatePayload struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

// Language selects the template translation.
type Language struct {
	Code string `json:"code"`
}

// Component is a template section with positional parameters.
type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter is a single positional template value.
type Parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BuildSendRequest maps content to the provider's payload shape.
func BuildSendRequest(to string, c Content) (*SendRequest, error) {
	req := &SendRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
	}
	switch v := c.(type) {
	case Text:
		req.Type = "text"
		req.Text = &TextPayload{Body: v.Body, PreviewURL: v.PreviewURL}
	case Template:
		if v.Name == "" {
			return nil, fmt.Errorf("template name is required")
		}
		tp := &TemplatePayload{Name: v.Name, Language: Language{Code: v.Language}}
		if len(v.Params) > 0 {
			params := make([]Parameter, 0, len(v.Params))
			for _, p := range v.Params {
				params = append(params, Parameter{Type: "text", Text: p})
			}
			tp.Components = []Component{{Type: "body", Parameters: params}}
		}
		req.Type = "template"
		req.Template = tp
	default:
		return nil, fmt.Errorf("unsupported content %T", c)
	}
	return req, nil
}

// TemplateParams returns the positional parameter values of a template
// request, in order.
func (r *SendRequest) TemplateParams() []string {
	if r.Template == nil {
		return nil
	}
	var out []string
	for _, comp := range r.Template.Components {
		for _, p := range comp.Parameters {
			out = append(out, p.Text)
		}
	}
	return out
}
