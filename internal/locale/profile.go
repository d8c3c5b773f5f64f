package locale

import (
	"fmt"
	"regexp"
	"strings"
)

// Bidi marks that chat clients sprinkle around timestamps and attachment tags.
const (
	LeftToRightMark rune = '\u200e'
	RightToLeftMark rune = '\u200f'
)

// Profile describes one export dialect: how a message boundary looks, how its
// date text parses, and which keyword tags an attachment line.
// A Profile is immutable once built; share it freely between goroutines.
type Profile struct {
	name             string
	mark             rune
	boundary         *regexp.Regexp
	matcher          *regexp.Regexp
	layout           string
	attachmentMarker string
	attachment       *regexp.Regexp
}

// NewProfile builds a Profile.
//
// boundary must contain exactly one capture group, which captures the date-time
// text between the brackets. mark may be zero, in which case the profile can only
// be selected by name and never by detection.
func NewProfile(name string, mark rune, boundary, layout, attachmentMarker string) (*Profile, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("locale name is required")
	}
	if layout == "" {
		return nil, fmt.Errorf("locale %q: date layout is required", name)
	}
	if strings.TrimSpace(attachmentMarker) == "" {
		return nil, fmt.Errorf("locale %q: attachment marker is required", name)
	}

	re, err := regexp.Compile(boundary)
	if err != nil {
		return nil, fmt.Errorf("locale %q: invalid boundary pattern: %w", name, err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("locale %q: boundary pattern must have exactly one capture group, got %d", name, re.NumSubexp())
	}

	full := "(?:" + boundary + ")"
	if mark != 0 {
		full = "(?:" + regexp.QuoteMeta(string(mark)) + ")?" + full
	}
	matcher, err := regexp.Compile(full)
	if err != nil {
		return nil, fmt.Errorf("locale %q: invalid boundary pattern: %w", name, err)
	}

	attachmentMarker = strings.TrimSpace(attachmentMarker)
	attachment, err := regexp.Compile(`<[\x{200E}\x{200F}]?` + regexp.QuoteMeta(attachmentMarker) + `:?\s*([^<>]+?)\s*>`)
	if err != nil {
		return nil, fmt.Errorf("locale %q: invalid attachment marker: %w", name, err)
	}

	return &Profile{
		name:             name,
		mark:             mark,
		boundary:         re,
		matcher:          matcher,
		layout:           layout,
		attachmentMarker: attachmentMarker,
		attachment:       attachment,
	}, nil
}

func mustProfile(name string, mark rune, boundary, layout, attachmentMarker string) *Profile {
	p, err := NewProfile(name, mark, boundary, layout, attachmentMarker)
	if err != nil {
		panic(err)
	}
	return p
}

// Name returns the registry key of the profile.
func (p *Profile) Name() string { return p.name }

// DirectionalityMark returns the fingerprint code point, or 0 if the profile has none.
func (p *Profile) DirectionalityMark() rune { return p.mark }

// DateLayout returns the time layout the boundary text parses with.
func (p *Profile) DateLayout() string { return p.layout }

// AttachmentMarker returns the keyword that opens an attachment tag.
func (p *Profile) AttachmentMarker() string { return p.attachmentMarker }

// BoundaryPattern returns the boundary pattern as configured, without the optional mark.
func (p *Profile) BoundaryPattern() string { return p.boundary.String() }

// Matcher returns the compiled boundary matcher including the optional leading mark.
// Capture group 1 is the date-time text.
func (p *Profile) Matcher() *regexp.Regexp { return p.matcher }

// AttachmentPattern returns the compiled attachment tag matcher.
// Capture group 1 is the file name.
func (p *Profile) AttachmentPattern() *regexp.Regexp { return p.attachment }

// Info is a serializable description of a Profile.
type Info struct {
	Name             string `json:"name"`
	Mark             string `json:"mark,omitempty"`
	Boundary         string `json:"boundary"`
	DateLayout       string `json:"date_layout"`
	AttachmentMarker string `json:"attachment_marker"`
	Detectable       bool   `json:"detectable"`
}

// Info describes the profile.
func (p *Profile) Info() Info {
	info := Info{
		Name:             p.name,
		Boundary:         p.BoundaryPattern(),
		DateLayout:       p.layout,
		AttachmentMarker: p.attachmentMarker,
		Detectable:       p.mark != 0,
	}
	if p.mark != 0 {
		info.Mark = fmt.Sprintf("U+%04X", p.mark)
	}
	return info
}

// Hebrew is the day-first, four-digit-year dialect with a right-to-left mark.
func Hebrew() *Profile {
	return mustProfile(
		"he",
		RightToLeftMark,
		`\[(\d{1,2}\.\d{1,2}\.\d{4}, \d{1,2}:\d{2}:\d{2})\]`,
		"2.1.2006, 15:04:05",
		"מצורף",
	)
}

// English is the month-first, two-digit-year, 12-hour dialect with a left-to-right mark.
// Newer clients put a narrow no-break space before the AM/PM suffix.
func English() *Profile {
	return mustProfile(
		"en",
		LeftToRightMark,
		`\[(\d{1,2}/\d{1,2}/\d{2}, \d{1,2}:\d{2}:\d{2}[ \x{202F}][AP]M)\]`,
		"1/2/06, 3:04:05 PM",
		"attached",
	)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
