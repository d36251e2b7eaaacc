package rebuild

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Kind is the category of content unit a rebuild targets.
type Kind string

const (
	KindArticle    Kind = "article"
	KindVolume     Kind = "volume"
	KindSection    Kind = "section"
	KindStaticPage Kind = "static-page"
	KindFull       Kind = "full"
)

// Environment keys forced to the requested journal regardless of what
// the tenant env file says.
const (
	EnvJournalCode   = "JOURNAL_CODE"
	EnvJournalRVCode = "JOURNAL_RVCODE"
)

// Scoped targeting variables: each narrows the site generator's
// static-generation fan-out to a single resource. KindFull sets none.
const (
	EnvTargetArticle = "BUILD_TARGET_ARTICLE_ID"
	EnvTargetVolume  = "BUILD_TARGET_VOLUME_ID"
	EnvTargetSection = "BUILD_TARGET_SECTION_ID"
	EnvTargetPage    = "BUILD_TARGET_PAGE_NAME"
)

var (
	ErrMissingJournal = errors.New("journal code is required")
	ErrMissingKind    = errors.New("resource kind is required")
	ErrUnknownKind    = errors.New("unknown resource kind")
	ErrMissingID      = errors.New("resource id is required for this kind")
	ErrMissingPage    = errors.New("page name is required for static-page")
)

// Descriptor names one resource to rebuild for one journal. It is
// consumed exactly once by the executor.
type Descriptor struct {
	Journal  string `json:"journal"`
	Kind     Kind   `json:"kind"`
	ID       string `json:"id,omitempty"`
	PageName string `json:"page,omitempty"`
}

// ParseKind validates a raw kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.TrimSpace(raw)) {
	case KindArticle:
		return KindArticle, nil
	case KindVolume:
		return KindVolume, nil
	case KindSection:
		return KindSection, nil
	case KindStaticPage:
		return KindStaticPage, nil
	case KindFull:
		return KindFull, nil
	case "":
		return "", ErrMissingKind
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Validate enforces the per-kind field requirements.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Journal) == "" {
		return ErrMissingJournal
	}
	if _, err := ParseKind(string(d.Kind)); err != nil {
		return err
	}
	switch d.Kind {
	case KindArticle, KindVolume, KindSection:
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("%w: %s", ErrMissingID, d.Kind)
		}
	case KindStaticPage:
		if strings.TrimSpace(d.PageName) == "" {
			return ErrMissingPage
		}
	}
	return nil
}

// TargetEnv returns the scoped targeting variable for the descriptor.
// ok is false for KindFull, which builds everything.
func (d Descriptor) TargetEnv() (key, value string, ok bool) {
	switch d.Kind {
	case KindArticle:
		return EnvTargetArticle, d.ID, true
	case KindVolume:
		return EnvTargetVolume, d.ID, true
	case KindSection:
		return EnvTargetSection, d.ID, true
	case KindStaticPage:
		return EnvTargetPage, d.PageName, true
	default:
		return "", "", false
	}
}

// OutputPath computes the deterministic artifact location for a
// completed build under the given root.
func (d Descriptor) OutputPath(root string) string {
	switch d.Kind {
	case KindArticle:
		return path.Join(root, d.Journal, "articles", d.ID)
	case KindVolume:
		return path.Join(root, d.Journal, "volumes", d.ID)
	case KindSection:
		return path.Join(root, d.Journal, "sections", d.ID)
	case KindStaticPage:
		return path.Join(root, d.Journal, "pages", d.PageName)
	default:
		return path.Join(root, d.Journal)
	}
}

// Label is a short human identifier used in logs.
func (d Descriptor) Label() string {
	switch d.Kind {
	case KindStaticPage:
		return fmt.Sprintf("%s/%s/%s", d.Journal, d.Kind, d.PageName)
	case KindFull:
		return fmt.Sprintf("%s/%s", d.Journal, d.Kind)
	default:
		return fmt.Sprintf("%s/%s/%s", d.Journal, d.Kind, d.ID)
	}
}
