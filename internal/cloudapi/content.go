package cloudapi

// Content is the body of an outbound message. It is implemented only by
// Text and Template.
type Content interface {
	isContent()
}

// Text is a plain text message.
type Text struct {
	Body       string
	PreviewURL bool
}

// Template is a pre-approved template message. Params fill the body
// placeholders {{1}}, {{2}}, ... in order.
type Template struct {
	Name     string
	Language string
	Params   []string
}

func (Text) isContent()     {}
func (Template) isContent() {}
