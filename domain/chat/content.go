package chat

import (
	"errors"
	"strings"
)

// Kind identifies which payload a message carries.
type Kind string

// Content kinds.
const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVoice Kind = "voice"
)

// Data-URI prefixes accepted for media payloads.
const (
	ImagePrefix = "data:image/"
	VoicePrefix = "data:audio/"
)

// Content validation errors.
var (
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrMultipleContent = errors.New("message must carry exactly one of text, image or voice")
	ErrInvalidImage    = errors.New("invalid image format")
	ErrInvalidVoice    = errors.New("invalid voice format")
)

// Content is a message payload holding exactly one of text, image or voice.
// The zero value is not valid; build one with TextContent, ImageContent,
// VoiceContent or ContentFromFields.
type Content struct {
	kind Kind
	body string
}

// TextContent returns a text payload.
func TextContent(text string) (Content, error) {
	if text == "" {
		return Content{}, ErrEmptyContent
	}
	return Content{kind: KindText, body: text}, nil
}

// ImageContent returns an image payload. The data must be a data-URI with
// an image/* media type.
func ImageContent(data string) (Content, error) {
	if !strings.HasPrefix(data, ImagePrefix) {
		return Content{}, ErrInvalidImage
	}
	return Content{kind: KindImage, body: data}, nil
}

// VoiceContent returns a voice payload. The data must be a data-URI with
// an audio/* media type.
func VoiceContent(data string) (Content, error) {
	if !strings.HasPrefix(data, VoicePrefix) {
		return Content{}, ErrInvalidVoice
	}
	return Content{kind: KindVoice, body: data}, nil
}

// ContentFromFields builds a payload from the wire representation, where
// each kind is an independently optional field. Exactly one field must be set.
func ContentFromFields(text, image, voice *string) (Content, error) {
	set := 0
	for _, f := range []*string{text, image, voice} {
		if f != nil && *f != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return Content{}, ErrEmptyContent
	case set > 1:
		return Content{}, ErrMultipleContent
	}

	switch {
	case text != nil && *text != "":
		return TextContent(*text)
	case image != nil && *image != "":
		return ImageContent(*image)
	default:
		return VoiceContent(*voice)
	}
}

// Kind returns the payload kind.
func (c Content) Kind() Kind {
	return c.kind
}

// Body returns the raw payload.
func (c Content) Body() string {
	return c.body
}

// Valid reports whether c was built by one of the constructors.
func (c Content) Valid() bool {
	return c.kind != "" && c.body != ""
}

// Fields returns the wire representation: one non-nil pointer for the
// populated kind, nil for the others.
func (c Content) Fields() (text, image, voice *string) {
	body := c.body
	switch c.kind {
	case KindText:
		text = &body
	case KindImage:
		image = &body
	case KindVoice:
		voice = &body
	}
	return text, image, voice
}
