package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/folio/internal/cms"
)

// Bundle is everything the site renders, each entity with its own
// degradation state.
type Bundle struct {
	Profile          Result[Profile]
	Experiences      Result[[]Experience]
	WorkProjects     Result[[]Project]
	PersonalProjects Result[[]Project]
	ContactMethods   Result[[]ContactMethod]
}

// Projects returns the unified project list, work first.
func (b Bundle) Projects() []Project {
	return Unify(b.WorkProjects.Value, b.PersonalProjects.Value)
}

// Err reports a page-level failure: the profile could not be loaded from a
// configured service. Every other degradation is absorbed by defaults.
func (b Bundle) Err() error {
	if b.Profile.OK() || errors.Is(b.Profile.Degraded, cms.ErrNotConfigured) {
		return nil
	}
	return fmt.Errorf("loading profile: %w", b.Profile.Degraded)
}

// Degraded maps entity names to the reason they hold defaults.
func (b Bundle) Degraded() map[string]string {
	out := make(map[string]string)
	add := func(name string, err error) {
		if err != nil {
			out[name] = err.Error()
		}
	}
	add("profile", b.Profile.Degraded)
	add("experiences", b.Experiences.Degraded)
	add("workProjects", b.WorkProjects.Degraded)
	add("personalProjects", b.PersonalProjects.Degraded)
	add("contactMethods", b.ContactMethods.Degraded)
	return out
}

// Loader fetches and normalizes all portfolio entities from a content
// source.
type Loader struct {
	src cms.Source
}

func NewLoader(src cms.Source) *Loader {
	return &Loader{src: src}
}

// ProfileHook runs inside the fan-out as soon as the profile has been fetched,
// so work that depends on it joins the same wait.
type ProfileHook func(ctx context.Context, p Profile)

// Load fetches every entity concurrently and waits for all of them and for
// any hooks.
func (l *Loader) Load(ctx context.Context, hooks ...ProfileHook) Bundle {
	var b Bundle
	mediaURL := URLQualifier(l.src.MediaURL)

	workQuery := cms.Collection().Where("projectType", string(KindWork))
	personalQuery := cms.Collection().Where("featured", "false").Where("projectType", string(KindPersonal))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Profile = load(gCtx, l.src, "profile", cms.ProfilePath, cms.Single(), DefaultProfile(),
			func(raw json.RawMessage) (Profile, error) { return NormalizeProfile(raw, mediaURL) })
		if b.Profile.OK() {
			for _, hook := range hooks {
				hook(gCtx, b.Profile.Value)
			}
		}
		return nil
	})
	g.Go(func() error {
		b.Experiences = load(gCtx, l.src, "experiences", cms.ExperiencesPath, cms.Collection(), []Experience{},
			NormalizeExperiences)
		return nil
	})
	g.Go(func() error {
		b.WorkProjects = load(gCtx, l.src, "work projects", cms.ProjectsPath, workQuery, []Project{},
			func(raw json.RawMessage) ([]Project, error) { return NormalizeProjects(raw, KindWork, mediaURL) })
		return nil
	})
	g.Go(func() error {
		b.PersonalProjects = load(gCtx, l.src, "personal projects", cms.ProjectsPath, personalQuery, []Project{},
			func(raw json.RawMessage) ([]Project, error) { return NormalizeProjects(raw, KindPersonal, mediaURL) })
		return nil
	})
	g.Go(func() error {
		b.ContactMethods = load(gCtx, l.src, "contact methods", cms.ContactMethodsPath, cms.Collection(), []ContactMethod{},
			NormalizeContactMethods)
		return nil
	})
	_ = g.Wait()

	return b
}

func load[T any](ctx context.Context, src cms.Source, name, path string, q cms.Query, def T, normalize func(json.RawMessage) (T, error)) Result[T] {
	raw, err := src.Fetch(ctx, path, q)
	if err != nil {
		if !errors.Is(err, cms.ErrNotConfigured) {
			slog.Warn("content: fetch failed, using defaults", "entity", name, "error", err)
		}
		return defaulted(def, err)
	}
	v, err := normalize(raw)
	if err != nil {
		slog.Warn("content: normalization failed, using defaults", "entity", name, "error", err)
		return defaulted(def, fmt.Errorf("normalizing %s: %w", name, err))
	}
	return fetched(v)
}
