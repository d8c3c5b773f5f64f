package chat

import (
	"strings"

	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/locale"
)

// TimestampPolicy decides what happens to a segment whose boundary does not parse.
type TimestampPolicy string

const (
	PolicyFail TimestampPolicy = "fail" // abort the run with MALFORMED_TIMESTAMP
	PolicySkip TimestampPolicy = "skip" // drop the segment and report it in Result.Skipped
)

// Options tunes a Parser.
type Options struct {
	// Policy for malformed timestamps; empty means PolicyFail.
	Policy TimestampPolicy

	// JoinContinuationLines collapses embedded line breaks of each text into spaces.
	JoinContinuationLines bool

	// Locale forces a registered profile by name instead of detecting one.
	Locale string
}

// Parser turns raw export text into ordered messages.
// It holds no mutable state, so one Parser may serve concurrent runs.
type Parser struct {
	registry *locale.Registry
	opts     Options
}

// NewParser creates a Parser over registry. A nil registry means the built-ins.
func NewParser(registry *locale.Registry, opts Options) *Parser {
	if registry == nil {
		registry = locale.DefaultRegistry()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFail
	}
	return &Parser{registry: registry, opts: opts}
}

// Parse detects the locale of text (unless one is forced) and assembles its messages.
//
// Blank input yields an empty result and no error, though a forced locale must
// still be registered. Input that has text but no
// recognisable directionality mark fails with UNSUPPORTED_LOCALE.
func (p *Parser) Parse(text string) (*Result, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		name := ""
		if p.opts.Locale != "" {
			profile, err := p.registry.Get(p.opts.Locale)
			if err != nil {
				return nil, err
			}
			name = profile.Name()
		}
		return &Result{Locale: name, Messages: []Message{}}, nil
	}

	profile, err := p.profileFor(text)
	if err != nil {
		return nil, err
	}
	return p.ParseWith(text, profile)
}

// ParseWith assembles the messages of text using profile, skipping detection.
func (p *Parser) ParseWith(text string, profile *locale.Profile) (*Result, error) {
	segments := Segments(text, profile)

	result := &Result{
		Locale:   profile.Name(),
		Messages: make([]Message, 0, len(segments)),
	}

	for i, seg := range segments {
		ts, err := ParseTimestamp(seg.RawTimestamp, profile)
		if err != nil {
			if p.opts.Policy == PolicySkip {
				result.Skipped = append(result.Skipped, SkippedSegment{
					Index:        i,
					Offset:       seg.Offset,
					RawTimestamp: seg.RawTimestamp,
					Reason:       err.Error(),
				})
				continue
			}
			return nil, errors.NewMalformedTimestamp(i, seg.Offset, seg.RawTimestamp, err)
		}

		sender, text, _ := SplitSender(seg.RawBody)
		if p.opts.JoinContinuationLines {
			text = JoinLines(text)
		}

		msg := Message{
			Seq:       len(result.Messages),
			Timestamp: ts,
			Sender:    sender,
			Text:      text,
		}
		if name, ok := ExtractAttachment(text, profile); ok {
			msg.Attachment = &name
		}
		result.Messages = append(result.Messages, msg)
	}

	return result, nil
}

func (p *Parser) profileFor(text string) (*locale.Profile, error) {
	if p.opts.Locale != "" {
		return p.registry.Get(p.opts.Locale)
	}
	return p.registry.Detect(locale.Sample(text))
}
