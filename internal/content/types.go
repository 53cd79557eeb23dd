// Package content turns content-service records into the portfolio model.
package content

// Profile is the site owner's singleton profile. Every field has a
// deterministic value after normalization and Skills is never nil.
type Profile struct {
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Bio            string   `json:"bio"`
	HeroTitle      string   `json:"heroTitle"`
	HeroSubtitle   string   `json:"heroSubtitle"`
	Tagline        string   `json:"tagline"`
	Email          string   `json:"email"`
	Website        string   `json:"website"`
	LinkedIn       string   `json:"linkedin"`
	GitHub         string   `json:"github"`
	Skills         []string `json:"skills"`
	SEOTitle       string   `json:"seoTitle"`
	SEODescription string   `json:"seoDescription"`
	CVURL          *string  `json:"cvUrl"`
}

const (
	defaultName           = "Portfolio"
	defaultSEODescription = "Personal portfolio"
)

// DefaultProfile is the profile used when the content service is absent.
func DefaultProfile() Profile {
	p := Profile{Skills: []string{}}
	applyProfileDefaults(&p)
	return p
}

func applyProfileDefaults(p *Profile) {
	if p.Name == "" {
		p.Name = defaultName
	}
	if p.HeroTitle == "" {
		p.HeroTitle = p.Name
	}
	if p.HeroSubtitle == "" {
		p.HeroSubtitle = p.Title
	}
	if p.SEOTitle == "" {
		p.SEOTitle = p.Name
		if p.Title != "" {
			p.SEOTitle += " | " + p.Title
		}
	}
	if p.SEODescription == "" {
		p.SEODescription = defaultSEODescription
		if p.Tagline != "" {
			p.SEODescription = p.Tagline
		}
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
}

type Experience struct {
	Role        string `json:"role"`
	Company     string `json:"company"`
	Period      string `json:"period"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// Kind tags a project as work or personal.
type Kind string

const (
	KindWork     Kind = "work"
	KindPersonal Kind = "personal"
)

// Project is a tagged variant. Work is non-nil iff Kind is KindWork.
type Project struct {
	Kind         Kind           `json:"kind"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Technologies []string       `json:"technologies"`
	GitHubURL    string         `json:"githubUrl,omitempty"`
	LiveURL      string         `json:"liveUrl,omitempty"`
	Images       []ProjectImage `json:"images,omitempty"`
	Work         *WorkDetails   `json:"work,omitempty"`
	Order        int            `json:"order"`
}

// WorkDetails holds the fields only work projects carry.
type WorkDetails struct {
	Role       string   `json:"role"`
	Year       string   `json:"year"`
	Company    string   `json:"company"`
	Category   string   `json:"category"`
	Highlights []string `json:"highlights"`
}

// ProjectImage has an absolute Src and a best-effort caption.
type ProjectImage struct {
	Src         string `json:"src"`
	Description string `json:"description"`
}

type ContactMethod struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Href        string `json:"href"`
	Icon        string `json:"icon"`
	Primary     bool   `json:"primary"`
	Order       int    `json:"order"`
}

// Result carries a value and, when Degraded is non-nil, the reason the value
// is an intentional default rather than fetched data.
type Result[T any] struct {
	Value    T
	Degraded error
}

// OK reports whether the value was fetched. A fetched value may be empty.
func (r Result[T]) OK() bool { return r.Degraded == nil }

func fetched[T any](v T) Result[T] { return Result[T]{Value: v} }

func defaulted[T any](v T, reason error) Result[T] { return Result[T]{Value: v, Degraded: reason} }
