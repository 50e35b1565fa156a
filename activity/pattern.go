package activity

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Arguments holds the named values captured by a matching pattern. Values
// are string, Mention, Hashtag, or Cashtag.
type Arguments struct {
	values map[string]any
}

// Len returns the number of captured arguments.
func (a *Arguments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Get returns the raw captured value.
func (a *Arguments) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	value, ok := a.values[name]
	return value, ok
}

// GetString returns a string argument captured by a {name} token.
func (a *Arguments) GetString(name string) (string, bool) {
	value, ok := a.Get(name)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

// GetMention returns a mention argument captured by a {@name} token.
func (a *Arguments) GetMention(name string) (Mention, bool) {
	value, ok := a.Get(name)
	if !ok {
		return Mention{}, false
	}
	mention, ok := value.(Mention)
	return mention, ok
}

// GetHashtag returns a hashtag argument captured by a {#name} token.
func (a *Arguments) GetHashtag(name string) (Hashtag, bool) {
	value, ok := a.Get(name)
	if !ok {
		return Hashtag{}, false
	}
	hashtag, ok := value.(Hashtag)
	return hashtag, ok
}

// GetCashtag returns a cashtag argument captured by a {$name} token.
func (a *Arguments) GetCashtag(name string) (Cashtag, bool) {
	value, ok := a.Get(name)
	if !ok {
		return Cashtag{}, false
	}
	cashtag, ok := value.(Cashtag)
	return cashtag, ok
}

// MatchResult is the outcome of matching a message against a pattern.
type MatchResult struct {
	Matched   bool
	Arguments *Arguments
}

type patternToken interface {
	// matches tests one message token. botUserID resolves the implicit
	// bot-mention token.
	matches(token Token, botUserID int64) bool
	// argName is the capture name, or "" for literals and the bot mention.
	argName() string
	// capture projects the matched token into an argument value.
	capture(token Token) any
}

type literalToken string

func (t literalToken) matches(token Token, _ int64) bool {
	word, ok := token.(Word)
	return ok && string(word) == string(t)
}
func (literalToken) argName() string   { return "" }
func (literalToken) capture(Token) any { return nil }

type stringArgToken string

func (stringArgToken) matches(token Token, _ int64) bool {
	_, ok := token.(Word)
	return ok
}
func (t stringArgToken) argName() string { return string(t) }
func (stringArgToken) capture(token Token) any {
	return string(token.(Word))
}

type mentionArgToken string

func (mentionArgToken) matches(token Token, _ int64) bool {
	_, ok := token.(Mention)
	return ok
}
func (t mentionArgToken) argName() string       { return string(t) }
func (mentionArgToken) capture(token Token) any { return token.(Mention) }

type hashtagArgToken string

func (hashtagArgToken) matches(token Token, _ int64) bool {
	_, ok := token.(Hashtag)
	return ok
}
func (t hashtagArgToken) argName() string       { return string(t) }
func (hashtagArgToken) capture(token Token) any { return token.(Hashtag) }

type cashtagArgToken string

func (cashtagArgToken) matches(token Token, _ int64) bool {
	_, ok := token.(Cashtag)
	return ok
}
func (t cashtagArgToken) argName() string       { return string(t) }
func (cashtagArgToken) capture(token Token) any { return token.(Cashtag) }

// botMentionToken is the implicit leading token of a mention-required
// command: a mention of the bot itself.
type botMentionToken struct{}

func (botMentionToken) matches(token Token, botUserID int64) bool {
	mention, ok := token.(Mention)
	return ok && mention.UserID == botUserID
}
func (botMentionToken) argName() string   { return "" }
func (botMentionToken) capture(Token) any { return nil }

// SlashCommandPattern is an ordered sequence of command tokens parsed from a
// pattern string such as "/trade {@counterparty} {$ticker} {quantity}".
type SlashCommandPattern struct {
	raw    string
	tokens []patternToken
}

// NewSlashCommandPattern parses and validates a pattern string. Argument
// names must be unique valid identifiers; literals must not contain braces.
func NewSlashCommandPattern(pattern string) (*SlashCommandPattern, error) {
	pieces := strings.Fields(pattern)
	tokens := make([]patternToken, 0, len(pieces))
	seen := make(map[string]struct{})
	for _, piece := range pieces {
		token, err := parsePatternToken(piece)
		if err != nil {
			return nil, err
		}
		if name := token.argName(); name != "" {
			if _, duplicate := seen[name]; duplicate {
				return nil, fmt.Errorf("duplicate argument name %q in pattern %q", name, pattern)
			}
			seen[name] = struct{}{}
		}
		tokens = append(tokens, token)
	}
	return &SlashCommandPattern{raw: pattern, tokens: tokens}, nil
}

func parsePatternToken(piece string) (patternToken, error) {
	if strings.HasPrefix(piece, "{") {
		if !strings.HasSuffix(piece, "}") {
			return nil, fmt.Errorf("malformed argument token %q", piece)
		}
		inner := piece[1 : len(piece)-1]
		kind := byte(0)
		if len(inner) > 0 {
			switch inner[0] {
			case '@', '#', '$':
				kind = inner[0]
				inner = inner[1:]
			}
		}
		if !identifierPattern.MatchString(inner) {
			return nil, fmt.Errorf("invalid argument name %q", inner)
		}
		switch kind {
		case '@':
			return mentionArgToken(inner), nil
		case '#':
			return hashtagArgToken(inner), nil
		case '$':
			return cashtagArgToken(inner), nil
		default:
			return stringArgToken(inner), nil
		}
	}
	if strings.ContainsAny(piece, "{}") {
		return nil, fmt.Errorf("literal token %q must not contain braces", piece)
	}
	return literalToken(piece), nil
}

// String returns the original pattern string.
func (p *SlashCommandPattern) String() string {
	return p.raw
}

// ArgumentNames returns the capture names in pattern order.
func (p *SlashCommandPattern) ArgumentNames() []string {
	var names []string
	for _, token := range p.tokens {
		if name := token.argName(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// prependBotMention injects the implicit bot-mention requirement before the
// first token.
func (p *SlashCommandPattern) prependBotMention() {
	p.tokens = append([]patternToken{botMentionToken{}}, p.tokens...)
}

// Match tests the token sequence 1:1 against the pattern and, on success,
// projects the named tokens into arguments.
func (p *SlashCommandPattern) Match(tokens []Token, botUserID int64) MatchResult {
	if len(tokens) != len(p.tokens) {
		return MatchResult{}
	}
	for i, patternTok := range p.tokens {
		if !patternTok.matches(tokens[i], botUserID) {
			return MatchResult{}
		}
	}
	arguments := &Arguments{values: make(map[string]any)}
	for i, patternTok := range p.tokens {
		if name := patternTok.argName(); name != "" {
			arguments.values[name] = patternTok.capture(tokens[i])
		}
	}
	return MatchResult{Matched: true, Arguments: arguments}
}
