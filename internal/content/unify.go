package content

// Unify tags work and personal with their kind and returns work projects
// followed by personal ones, each in input order. A personal project loses
// any work details.
func Unify(work, personal []Project) []Project {
	out := make([]Project, 0, len(work)+len(personal))
	for _, p := range work {
		p.Kind = KindWork
		if p.Work == nil {
			p.Work = &WorkDetails{Highlights: []string{}}
		}
		out = append(out, p)
	}
	for _, p := range personal {
		p.Kind = KindPersonal
		p.Work = nil
		out = append(out, p)
	}
	return out
}

// PartitionByImages splits projects by whether they have at least one image.
// Relative order is preserved in both results.
func PartitionByImages(projects []Project) (withImages, withoutImages []Project) {
	withImages = []Project{}
	withoutImages = []Project{}
	for _, p := range projects {
		if len(p.Images) > 0 {
			withImages = append(withImages, p)
		} else {
			withoutImages = append(withoutImages, p)
		}
	}
	return withImages, withoutImages
}

// OfKind returns the projects tagged kind, in order.
func OfKind(projects []Project, kind Kind) []Project {
	var out []Project
	for _, p := range projects {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}
