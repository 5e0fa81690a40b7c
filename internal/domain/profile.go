package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/totegamma/castline"
)

type Tier string

const (
	TierUnknown Tier = ""
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierElite   Tier = "elite"
)

func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree
	case TierPro:
		return TierPro
	case TierElite:
		return TierElite
	default:
		return TierUnknown
	}
}

// Rank orders tiers for conflict resolution. Unknown tiers rank below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPro:
		return 2
	case TierElite:
		return 3
	default:
		return 0
	}
}

func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = TierUnknown
		return nil
	}
	*t = ParseTier(s)
	return nil
}

type Kind string

const (
	KindUnknown  Kind = ""
	KindTalent   Kind = "talent"
	KindResource Kind = "resource"
)

func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTalent:
		return KindTalent
	case KindResource:
		return KindResource
	default:
		return KindUnknown
	}
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*k = KindUnknown
		return nil
	}
	*k = ParseKind(s)
	return nil
}

// CategoryCap is the maximum number of categories a listing of this kind carries.
func (k Kind) CategoryCap() int {
	if k == KindResource {
		return MaxResourceCategories
	}
	return MaxTalentCategories
}

// Categories accepts either a single string or a list on input and always
// encodes as a list.
type Categories []string

func (c *Categories) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = Categories{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*c = Categories{}
		} else {
			*c = Categories{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	out := make(Categories, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*c = out
	return nil
}

// Years is an age that forms submit either as a number or a numeric string.
type Years int

func (y *Years) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*y = 0
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		*y = 0
		return nil
	}
	*y = Years(v)
	return nil
}

// TalentFields are only meaningful for talent listings.
type TalentFields struct {
	Age    Years  `json:"age,omitempty"`
	Sex    string `json:"sex,omitempty"`
	Height string `json:"height,omitempty"`
}

// ResourceFields are only meaningful for resource listings.
type ResourceFields struct {
	ResourceTitle       string `json:"resourceTitle,omitempty"`
	ResourceDescription string `json:"resourceDescription,omitempty"`
	ResourceLocation    string `json:"resourceLocation,omitempty"`
}

// ProFields are shared by the paid tiers.
type ProFields struct {
	ProfileVideo string     `json:"profileVideo,omitempty"`
	HasPaid      bool       `json:"hasPaid,omitempty"`
	TrialEndsAt  *time.Time `json:"trialEndsAt,omitempty"`
}

type EliteFields struct {
	CompanyLogos []string `json:"companyLogos,omitempty"`
}

// Profile is one user's listing. Kind and tier specific fields live in the
// embedded sub-structs and stay flat on the wire.
type Profile struct {
	Identity            string     `json:"email"`
	MembershipTier      Tier       `json:"membershipType"`
	Kind                Kind       `json:"profileKind,omitempty"`
	LockedKind          Kind       `json:"lockedProfileKind,omitempty"`
	DisplayName         string     `json:"name"`
	MediaPrimary        string     `json:"profilePhoto"`
	MediaGallery        []string   `json:"bookPhotos,omitempty"`
	Categories          Categories `json:"category"`
	Visible             bool       `json:"visible"`
	Flagged             bool       `json:"flagged"`
	Highlighted         bool       `json:"isHighlighted"`
	HighlightedUntil    *time.Time `json:"highlightedUntil"`
	LastUpdatedAt       *time.Time `json:"lastUpdated,omitempty"`
	Timestamp           *time.Time `json:"timestamp,omitempty"`
	RepresentativeEmail string     `json:"representativeEmail,omitempty"`

	*TalentFields
	*ResourceFields
	*ProFields
	*EliteFields
}

// DecodeProfile reads a profile out of a raw document. A missing visible
// field means visible.
func DecodeProfile(doc castline.Document) (Profile, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, err
	}
	if v, ok := doc["visible"].(bool); ok {
		p.Visible = v
	} else {
		p.Visible = true
	}
	if p.Categories == nil {
		p.Categories = Categories{}
	}
	return p, nil
}

func (p Profile) Document() (castline.Document, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return castline.ParseDocument(string(b))
}

func (p Profile) IsResource() bool {
	return p.Kind == KindResource || p.LockedKind == KindResource
}

func (p Profile) Video() string {
	if p.ProFields == nil {
		return ""
	}
	return p.ProFields.ProfileVideo
}

func (p Profile) Logos() []string {
	if p.EliteFields == nil {
		return nil
	}
	return p.EliteFields.CompanyLogos
}

// HighlightActive reports whether the pro highlight is still running at now.
func (p Profile) HighlightActive(now time.Time) bool {
	return p.MembershipTier == TierPro && p.Highlighted && p.HighlightedUntil != nil && p.HighlightedUntil.After(now)
}

// ClearHighlight resets both highlight fields.
func (p *Profile) ClearHighlight() {
	p.Highlighted = false
	p.HighlightedUntil = nil
}

// Clamp enforces the per-kind category cap and the gallery size.
func (p *Profile) Clamp() {
	if limit := p.Kind.CategoryCap(); len(p.Categories) > limit {
		p.Categories = p.Categories[:limit]
	}
	if len(p.MediaGallery) > MaxGallery {
		p.MediaGallery = p.MediaGallery[:MaxGallery]
	}
}

// Admit applies the admission filter: a valid identity, a display name and a primary photo.
func Admit(p Profile) error {
	if !castline.IsIdentity(p.Identity) {
		return &ValidationError{Identity: p.Identity, Reason: "invalid identity"}
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return &ValidationError{Identity: p.Identity, Reason: "missing name"}
	}
	if strings.TrimSpace(p.MediaPrimary) == "" {
		return &ValidationError{Identity: p.Identity, Reason: "missing profile photo"}
	}
	return nil
}

// MissingFields lists the fields a profile still needs before its session may become active.
func MissingFields(p Profile) []string {
	missing := []string{}
	if strings.TrimSpace(p.MediaPrimary) == "" {
		missing = append(missing, "profilePhoto")
	}
	if len(p.Categories) == 0 {
		missing = append(missing, "category")
	}

	if p.IsResource() {
		r := p.ResourceFields
		if r == nil {
			r = &ResourceFields{}
		}
		if strings.TrimSpace(r.ResourceTitle) == "" {
			missing = append(missing, "resourceTitle")
		}
		if strings.TrimSpace(r.ResourceDescription) == "" {
			missing = append(missing, "resourceDescription")
		}
		if strings.TrimSpace(r.ResourceLocation) == "" {
			missing = append(missing, "resourceLocation")
		}
	} else {
		t := p.TalentFields
		if t == nil {
			t = &TalentFields{}
		}
		if t.Age <= 0 {
			missing = append(missing, "age")
		}
		if strings.TrimSpace(t.Sex) == "" {
			missing = append(missing, "sex")
		}
	}

	if p.MembershipTier == TierPro || p.MembershipTier == TierElite {
		if len(p.MediaGallery) == 0 {
			missing = append(missing, "bookPhotos")
		}
		if strings.TrimSpace(p.Video()) == "" {
			missing = append(missing, "profileVideo")
		}
	}
	if p.MembershipTier == TierElite && len(p.Logos()) == 0 {
		missing = append(missing, "companyLogos")
	}
	return missing
}
