package content

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/kalambet/folio/internal/cms"
)

var qualify = URLQualifier(func(s string) string { return cms.QualifyURL("https://cms.example.com", s) })

func TestNormalizeProfile_Flattened(t *testing.T) {
	body := json.RawMessage(`{"data":{
		"id": 1,
		"name": "Ada Lovelace",
		"title": "Staff Engineer",
		"company": "Analytical Engines",
		"bio": [{"type":"paragraph","children":[{"type":"text","text":"Writes programs."}]}],
		"email": "ada@example.com",
		"github": "https://github.com/ada",
		"skills": ["Go", "Distributed systems"],
		"cv": {"url": "/uploads/cv_1a2b3c.pdf"}
	}}`)

	p, err := NormalizeProfile(body, qualify)
	if err != nil {
		t.Fatalf("NormalizeProfile: %v", err)
	}

	if p.Name != "Ada Lovelace" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Bio != "Writes programs." {
		t.Errorf("Bio = %q", p.Bio)
	}
	if !reflect.DeepEqual(p.Skills, []string{"Go", "Distributed systems"}) {
		t.Errorf("Skills = %v", p.Skills)
	}
	if p.CVURL == nil || *p.CVURL != "https://cms.example.com/uploads/cv_1a2b3c.pdf" {
		t.Errorf("CVURL = %v, want qualified URL", p.CVURL)
	}
	if p.HeroTitle != "Ada Lovelace" {
		t.Errorf("HeroTitle default = %q, want name", p.HeroTitle)
	}
	if p.SEOTitle != "Ada Lovelace | Staff Engineer" {
		t.Errorf("SEOTitle default = %q", p.SEOTitle)
	}
}

func TestNormalizeProfile_LegacyAttributes(t *testing.T) {
	body := json.RawMessage(`{"data":{"id":1,"attributes":{
		"name": "Grace",
		"skills": "Go, COBOL ,\tcompilers",
		"cvFile": {"data": {"id": 9, "attributes": {"url": "https://files.example.com/cv.pdf"}}},
		"seo": {"metaTitle": "Grace H.", "metaDescription": "Compiler pioneer"}
	}}}`)

	p, err := NormalizeProfile(body, qualify)
	if err != nil {
		t.Fatalf("NormalizeProfile: %v", err)
	}

	if p.Name != "Grace" {
		t.Errorf("Name = %q", p.Name)
	}
	if !reflect.DeepEqual(p.Skills, []string{"Go", "COBOL", "compilers"}) {
		t.Errorf("Skills = %v", p.Skills)
	}
	if p.CVURL == nil || *p.CVURL != "https://files.example.com/cv.pdf" {
		t.Errorf("CVURL = %v", p.CVURL)
	}
	if p.SEOTitle != "Grace H." || p.SEODescription != "Compiler pioneer" {
		t.Errorf("SEO = %q / %q", p.SEOTitle, p.SEODescription)
	}
}

func TestNormalizeProfile_MissingSkillsIsEmptyList(t *testing.T) {
	p, err := NormalizeProfile(json.RawMessage(`{"data":{"name":"X"}}`), qualify)
	if err != nil {
		t.Fatalf("NormalizeProfile: %v", err)
	}
	if p.Skills == nil || len(p.Skills) != 0 {
		t.Errorf("Skills = %#v, want empty non-nil list", p.Skills)
	}
	if p.CVURL != nil {
		t.Errorf("CVURL = %v, want nil", *p.CVURL)
	}
}

func TestNormalizeProfile_NullData(t *testing.T) {
	p, err := NormalizeProfile(json.RawMessage(`{"data":null}`), qualify)
	if !errors.Is(err, ErrNoProfile) {
		t.Fatalf("error = %v, want ErrNoProfile", err)
	}
	if !reflect.DeepEqual(p, DefaultProfile()) {
		t.Errorf("profile = %+v, want defaults", p)
	}
}

func TestNormalizeProfile_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"data":[1,2]}`, `"text"`} {
		if _, err := NormalizeProfile(json.RawMessage(body), qualify); !errors.Is(err, ErrMalformed) {
			t.Errorf("NormalizeProfile(%s) error = %v, want ErrMalformed", body, err)
		}
	}
}

func TestNormalizeExperiences_StableOrder(t *testing.T) {
	body := json.RawMessage(`{"data":[
		{"role":"C","company":"c","order":2},
		{"role":"A","company":"a","order":1,"startDate":"2020","endDate":null},
		{"role":"B","company":"b","order":1,"period":"2018 - 2020"},
		{"attributes":{"role":"Z","order":"0","description":"plain"}}
	]}`)

	exps, err := NormalizeExperiences(body)
	if err != nil {
		t.Fatalf("NormalizeExperiences: %v", err)
	}

	var roles []string
	for _, e := range exps {
		roles = append(roles, e.Role)
	}
	if !reflect.DeepEqual(roles, []string{"Z", "A", "B", "C"}) {
		t.Errorf("roles = %v, want [Z A B C]", roles)
	}
	if exps[1].Period != "2020 - Present" {
		t.Errorf("Period = %q, want %q", exps[1].Period, "2020 - Present")
	}
	if exps[0].Description != "plain" {
		t.Errorf("Description = %q", exps[0].Description)
	}
}

func TestNormalizeExperiences_EmptyAndMalformed(t *testing.T) {
	exps, err := NormalizeExperiences(json.RawMessage(`{"data":[]}`))
	if err != nil || exps == nil || len(exps) != 0 {
		t.Errorf("empty collection = %v, %v; want empty list, nil", exps, err)
	}
	if _, err := NormalizeExperiences(json.RawMessage(`{"data":{"id":1}}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("object data error = %v, want ErrMalformed", err)
	}
}

func TestNormalizeProjects_Work(t *testing.T) {
	body := json.RawMessage(`{"data":[{
		"title": "Billing platform",
		"description": "Rebuilt billing.",
		"technologies": ["Go", "Postgres"],
		"highlights": "- Cut latency 40%\n- Zero-downtime migration",
		"role": "Lead", "year": 2023, "company": "Acme", "category": "Backend",
		"featured": true, "projectType": "work",
		"imageCaption": "photo-one.png: Dashboard view\nflow.png: Request flow",
		"images": [
			{"url": "/uploads/photo_one_ab12cd34.png", "alternativeText": "alt one"},
			{"url": "https://cdn.example.com/other.png", "alternativeText": "Other alt"}
		]
	}]}`)

	projects, err := NormalizeProjects(body, KindWork, qualify)
	if err != nil {
		t.Fatalf("NormalizeProjects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}

	p := projects[0]
	if p.Kind != KindWork || p.Work == nil {
		t.Fatalf("Kind = %q, Work = %v; want work with details", p.Kind, p.Work)
	}
	if p.Work.Year != "2023" || p.Work.Company != "Acme" {
		t.Errorf("Work = %+v", p.Work)
	}
	if !reflect.DeepEqual(p.Work.Highlights, []string{"Cut latency 40%", "Zero-downtime migration"}) {
		t.Errorf("Highlights = %v", p.Work.Highlights)
	}
	want := []ProjectImage{
		{Src: "https://cms.example.com/uploads/photo_one_ab12cd34.png", Description: "Dashboard view"},
		{Src: "https://cdn.example.com/other.png", Description: "Other alt"},
	}
	if !reflect.DeepEqual(p.Images, want) {
		t.Errorf("Images = %+v, want %+v", p.Images, want)
	}
}

func TestNormalizeProjects_LegacyMediaAndFiltering(t *testing.T) {
	body := json.RawMessage(`{"data":[
		{"id":1,"attributes":{"title":"Side project","featured":false,"projectType":"personal","technologies":"[\"Rust\",\"WASM\"]",
			"images":{"data":[{"id":3,"attributes":{"url":"/uploads/shot.png"}}]}}},
		{"id":2,"attributes":{"title":"Featured personal","featured":true,"projectType":"personal"}},
		{"id":3,"attributes":{"title":"Stray work","projectType":"work"}},
		{"id":4,"attributes":{"title":"Untyped"}}
	]}`)

	projects, err := NormalizeProjects(body, KindPersonal, qualify)
	if err != nil {
		t.Fatalf("NormalizeProjects: %v", err)
	}

	var titles []string
	for _, p := range projects {
		titles = append(titles, p.Title)
		if p.Work != nil {
			t.Errorf("%q: personal project has work details", p.Title)
		}
	}
	if !reflect.DeepEqual(titles, []string{"Side project", "Untyped"}) {
		t.Errorf("titles = %v", titles)
	}
	if !reflect.DeepEqual(projects[0].Technologies, []string{"Rust", "WASM"}) {
		t.Errorf("Technologies = %v", projects[0].Technologies)
	}
	if len(projects[0].Images) != 1 || projects[0].Images[0].Src != "https://cms.example.com/uploads/shot.png" {
		t.Errorf("Images = %+v", projects[0].Images)
	}
	if projects[1].Images != nil {
		t.Errorf("Images = %+v, want nil", projects[1].Images)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		projectType string
		featured    bool
		hasFeatured bool
		kind        Kind
		known       bool
	}{
		{"work", true, true, KindWork, true},
		{"work", false, true, KindWork, true},
		{"personal", false, true, KindPersonal, true},
		{"personal", true, true, "", true},
		{"", true, true, KindWork, true},
		{"", false, true, KindPersonal, true},
		{"", false, false, "", false},
	}
	for _, tt := range tests {
		kind, known := Classify(tt.projectType, tt.featured, tt.hasFeatured)
		if kind != tt.kind || known != tt.known {
			t.Errorf("Classify(%q, %v, %v) = %q, %v; want %q, %v",
				tt.projectType, tt.featured, tt.hasFeatured, kind, known, tt.kind, tt.known)
		}
	}
}

func TestNormalizeContactMethods(t *testing.T) {
	body := json.RawMessage(`{"data":[
		{"title":"Phone","value":"+1 (555) 010-2000","icon":"phone","order":3},
		{"title":"Email","value":"me@example.com","icon":"mail","primary":true,"order":1},
		{"title":"LinkedIn","value":"in/me","href":"https://linkedin.com/in/me","order":2},
		{"title":"Site","value":"https://me.dev","order":4}
	]}`)

	contacts, err := NormalizeContactMethods(body)
	if err != nil {
		t.Fatalf("NormalizeContactMethods: %v", err)
	}

	wantHrefs := []string{"mailto:me@example.com", "https://linkedin.com/in/me", "tel:+15550102000", "https://me.dev"}
	for i, c := range contacts {
		if c.Href != wantHrefs[i] {
			t.Errorf("contacts[%d].Href = %q, want %q", i, c.Href, wantHrefs[i])
		}
	}
	if !contacts[0].Primary {
		t.Error("email should be primary")
	}
}
