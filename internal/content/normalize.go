package content

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/kalambet/folio/internal/caption"
)

// ErrNoProfile is returned when the service has no profile entry.
var ErrNoProfile = errors.New("profile not found")

// URLQualifier turns a possibly relative media path into an absolute URL.
type URLQualifier func(string) string

func (q URLQualifier) apply(s string) string {
	if q == nil {
		return s
	}
	return q(s)
}

// NormalizeProfile reads the singleton profile. On error the returned
// profile is DefaultProfile().
func NormalizeProfile(body json.RawMessage, mediaURL URLQualifier) (Profile, error) {
	rec, ok, err := singleRecord(body)
	if err != nil {
		return DefaultProfile(), err
	}
	if !ok {
		return DefaultProfile(), ErrNoProfile
	}

	p := Profile{
		Name:           rec.str("name", "fullName"),
		Title:          rec.str("title", "jobTitle"),
		Company:        rec.str("company", "currentCompany"),
		Bio:            rec.text("bio", "about", "description"),
		HeroTitle:      rec.str("heroTitle"),
		HeroSubtitle:   rec.str("heroSubtitle"),
		Tagline:        rec.str("tagline"),
		Email:          rec.str("email"),
		Website:        rec.str("website", "websiteUrl"),
		LinkedIn:       rec.str("linkedin", "linkedIn", "linkedinUrl"),
		GitHub:         rec.str("github", "githubUrl"),
		Skills:         rec.list("skills"),
		SEOTitle:       rec.str("seoTitle", "metaTitle"),
		SEODescription: rec.str("seoDescription", "metaDescription"),
	}

	if seoRaw, ok := rec["seo"]; ok && !isNull(seoRaw) {
		if seo, ok := toRecord(seoRaw); ok {
			if p.SEOTitle == "" {
				p.SEOTitle = seo.str("metaTitle", "title")
			}
			if p.SEODescription == "" {
				p.SEODescription = seo.str("metaDescription", "description")
			}
		}
	}

	cv := ""
	for _, key := range []string{"cv", "cvFile", "resume"} {
		if m := rec.mediaList(key); len(m) > 0 {
			cv = m[0].URL
			break
		}
	}
	if cv == "" {
		cv = rec.str("cvUrl", "resumeUrl")
	}
	if cv != "" {
		u := mediaURL.apply(cv)
		p.CVURL = &u
	}

	applyProfileDefaults(&p)
	return p, nil
}

// NormalizeExperiences reads the experience collection sorted by Order.
// Entries with equal order keep their input order.
func NormalizeExperiences(body json.RawMessage) ([]Experience, error) {
	recs, err := listRecords(body)
	if err != nil {
		return []Experience{}, err
	}

	out := make([]Experience, 0, len(recs))
	for _, r := range recs {
		out = append(out, Experience{
			Role:        r.str("role", "position", "title"),
			Company:     r.str("company", "organization"),
			Period:      period(r),
			Description: r.text("description", "summary"),
			Order:       r.integer("order"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func period(r record) string {
	if p := r.str("period", "duration"); p != "" {
		return p
	}
	start := r.str("startDate", "start")
	if start == "" {
		return ""
	}
	end := r.str("endDate", "end")
	if end == "" {
		end = "Present"
	}
	return start + " - " + end
}

// Classify derives a project's kind from its projectType and featured
// fields. known is false when the record carries neither field. A featured
// personal project belongs to no kind and yields ("", true).
func Classify(projectType string, featured, hasFeatured bool) (kind Kind, known bool) {
	switch strings.ToLower(strings.TrimSpace(projectType)) {
	case "work":
		return KindWork, true
	case "personal":
		if hasFeatured && featured {
			return "", true
		}
		return KindPersonal, true
	}
	if !hasFeatured {
		return "", false
	}
	if featured {
		return KindWork, true
	}
	return KindPersonal, true
}

// NormalizeProjects reads a project collection requested as kind. Records
// whose own fields classify them as another kind are dropped, which covers
// services that ignore query filters.
func NormalizeProjects(body json.RawMessage, kind Kind, mediaURL URLQualifier) ([]Project, error) {
	recs, err := listRecords(body)
	if err != nil {
		return []Project{}, err
	}

	out := make([]Project, 0, len(recs))
	for _, r := range recs {
		featured, hasFeatured := r.boolean("featured")
		if k, known := Classify(r.str("projectType"), featured, hasFeatured); known && k != kind {
			continue
		}
		out = append(out, normalizeProject(r, kind, mediaURL))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func normalizeProject(r record, kind Kind, mediaURL URLQualifier) Project {
	p := Project{
		Kind:         kind,
		Title:        r.str("title", "name"),
		Description:  r.text("description", "summary"),
		Technologies: r.list("technologies"),
		GitHubURL:    r.str("githubUrl", "github", "repoUrl"),
		LiveURL:      r.str("liveUrl", "demoUrl", "link", "website"),
		Order:        r.integer("order"),
	}
	if len(p.Technologies) == 0 {
		p.Technologies = r.list("techStack")
	}

	captions := caption.Parse(r.str("imageCaption", "imageCaptions"))
	for _, key := range []string{"images", "image", "gallery"} {
		for _, m := range r.mediaList(key) {
			p.Images = append(p.Images, ProjectImage{
				Src:         mediaURL.apply(m.URL),
				Description: captions.Describe(m.URL, m.Alt),
			})
		}
		if len(p.Images) > 0 {
			break
		}
	}

	if kind == KindWork {
		p.Work = &WorkDetails{
			Role:       r.str("role"),
			Year:       r.str("year"),
			Company:    r.str("company", "client"),
			Category:   r.str("category"),
			Highlights: r.list("highlights"),
		}
	}
	return p
}

// NormalizeContactMethods reads the contact collection sorted by Order. A
// missing href is derived from the value when it is an e-mail address, a
// URL or a phone number.
func NormalizeContactMethods(body json.RawMessage) ([]ContactMethod, error) {
	recs, err := listRecords(body)
	if err != nil {
		return []ContactMethod{}, err
	}

	out := make([]ContactMethod, 0, len(recs))
	for _, r := range recs {
		primary, _ := r.boolean("primary")
		if !primary {
			primary, _ = r.boolean("isPrimary")
		}
		c := ContactMethod{
			Title:       r.str("title", "label", "name"),
			Description: r.text("description"),
			Value:       r.str("value"),
			Href:        r.str("href", "url", "link"),
			Icon:        r.str("icon", "iconKey", "type"),
			Primary:     primary,
			Order:       r.integer("order"),
		}
		if c.Href == "" {
			c.Href = deriveHref(c.Value)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func deriveHref(value string) string {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return ""
	case strings.HasPrefix(v, "http://"), strings.HasPrefix(v, "https://"), strings.HasPrefix(v, "mailto:"), strings.HasPrefix(v, "tel:"):
		return v
	case strings.Contains(v, "@") && !strings.ContainsAny(v, " /"):
		return "mailto:" + v
	case isPhone(v):
		return "tel:" + strings.Map(func(r rune) rune {
			if r == '+' || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, v)
	}
	return ""
}

func isPhone(v string) bool {
	digits := 0
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune("+-() .", r):
		default:
			return false
		}
	}
	return digits >= 7
}
