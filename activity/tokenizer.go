// Package activity matches incoming events against user-registered
// activities: slash commands parsed from PresentationML, Symphony Elements
// form replies, and room-join notifications.
package activity

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/finos/symphony-bdk-go/event"
)

// Supported entity descriptor types in the message data map.
const (
	entityTypeMention = "com.symphony.user.mention"
	entityTypeHashtag = "org.symphonyoss.taxonomy.hashtag"
	entityTypeCashtag = "org.symphonyoss.fin.security"
)

// Token is one element of a tokenized message: a Word, Mention, Hashtag, or
// Cashtag, in document order.
type Token interface {
	isToken()
	// Text is the visible text of the token.
	Text() string
}

// Word is a whitespace-delimited run of plain text.
type Word string

func (Word) isToken()       {}
func (w Word) Text() string { return string(w) }

// Mention is an @-mention entity resolved to a user id.
type Mention struct {
	DisplayText string
	UserID      int64
}

func (Mention) isToken()       {}
func (m Mention) Text() string { return m.DisplayText }

// Hashtag is a #tag entity with its taxonomy value.
type Hashtag struct {
	DisplayText string
	Value       string
}

func (Hashtag) isToken()       {}
func (h Hashtag) Text() string { return h.DisplayText }

// Cashtag is a $ticker entity with its security value.
type Cashtag struct {
	DisplayText string
	Value       string
}

func (Cashtag) isToken()       {}
func (c Cashtag) Text() string { return c.DisplayText }

type entityID struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type entityDescriptor struct {
	Type string     `json:"type"`
	ID   []entityID `json:"id"`
}

func (d entityDescriptor) firstValue() (string, error) {
	if len(d.ID) == 0 {
		return "", errors.New("entity descriptor has no id")
	}
	raw := d.ID[0].Value
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String(), nil
	}
	return "", fmt.Errorf("unsupported entity id value %s", string(raw))
}

// Tokenize walks the message's PresentationML depth-first, splitting plain
// text on whitespace and resolving supported entity spans against the data
// map. Unknown entities read as plain text.
func Tokenize(message *event.V4Message) ([]Token, error) {
	entities, err := parseEntityData(message.Data)
	if err != nil {
		return nil, err
	}

	decoder := xml.NewDecoder(strings.NewReader(message.Message))

	var tokens []Token
	var buffer strings.Builder

	flush := func() {
		for _, word := range strings.Fields(buffer.String()) {
			tokens = append(tokens, Word(word))
		}
		buffer.Reset()
	}

	for {
		next, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse presentationml: %w", err)
		}
		switch element := next.(type) {
		case xml.CharData:
			buffer.Write(element)
		case xml.StartElement:
			descriptor, ok := entitySpan(element, entities)
			if !ok {
				continue
			}
			visible, err := innerText(decoder)
			if err != nil {
				return nil, fmt.Errorf("parse presentationml: %w", err)
			}
			entityToken, err := buildEntityToken(descriptor, strings.TrimSpace(visible))
			if err != nil {
				return nil, err
			}
			flush()
			tokens = append(tokens, entityToken)
		}
	}
	flush()
	return tokens, nil
}

// TextContent extracts the whitespace-normalized visible text of a
// PresentationML document.
func TextContent(presentationML string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(presentationML))
	var buffer strings.Builder
	for {
		next, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse presentationml: %w", err)
		}
		if text, ok := next.(xml.CharData); ok {
			buffer.Write(text)
		}
	}
	return strings.Join(strings.Fields(buffer.String()), " "), nil
}

func parseEntityData(data string) (map[string]entityDescriptor, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	entities := make(map[string]entityDescriptor)
	if err := json.Unmarshal([]byte(data), &entities); err != nil {
		return nil, fmt.Errorf("parse message data: %w", err)
	}
	return entities, nil
}

// entitySpan recognizes <span class="entity" data-entity-id="K"> elements
// whose descriptor carries a supported type.
func entitySpan(element xml.StartElement, entities map[string]entityDescriptor) (entityDescriptor, bool) {
	if element.Name.Local != "span" {
		return entityDescriptor{}, false
	}
	var class, entityKey string
	for _, attr := range element.Attr {
		switch attr.Name.Local {
		case "class":
			class = attr.Value
		case "data-entity-id":
			entityKey = attr.Value
		}
	}
	if !strings.Contains(class, "entity") || entityKey == "" {
		return entityDescriptor{}, false
	}
	descriptor, ok := entities[entityKey]
	if !ok {
		return entityDescriptor{}, false
	}
	switch descriptor.Type {
	case entityTypeMention, entityTypeHashtag, entityTypeCashtag:
		return descriptor, true
	}
	return entityDescriptor{}, false
}

func innerText(decoder *xml.Decoder) (string, error) {
	var buffer strings.Builder
	depth := 1
	for depth > 0 {
		next, err := decoder.Token()
		if err != nil {
			return "", err
		}
		switch element := next.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			buffer.Write(element)
		}
	}
	return buffer.String(), nil
}

func buildEntityToken(descriptor entityDescriptor, visible string) (Token, error) {
	value, err := descriptor.firstValue()
	if err != nil {
		return nil, err
	}
	switch descriptor.Type {
	case entityTypeMention:
		userID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("mention user id %q: %w", value, err)
		}
		return Mention{DisplayText: visible, UserID: userID}, nil
	case entityTypeHashtag:
		return Hashtag{DisplayText: visible, Value: value}, nil
	case entityTypeCashtag:
		return Cashtag{DisplayText: visible, Value: value}, nil
	}
	return nil, fmt.Errorf("unsupported entity type %q", descriptor.Type)
}
