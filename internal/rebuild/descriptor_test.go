package rebuild

import (
	"errors"
	"testing"
)

func TestDescriptorValidate(t *testing.T) {
	cases := []struct {
		name string
		d    Descriptor
		want error
	}{
		{"article ok", Descriptor{Journal: "epijinfo", Kind: KindArticle, ID: "12"}, nil},
		{"full ok", Descriptor{Journal: "epijinfo", Kind: KindFull}, nil},
		{"static page ok", Descriptor{Journal: "epijinfo", Kind: KindStaticPage, PageName: "about"}, nil},
		{"missing journal", Descriptor{Kind: KindArticle, ID: "12"}, ErrMissingJournal},
		{"missing kind", Descriptor{Journal: "epijinfo"}, ErrMissingKind},
		{"unknown kind", Descriptor{Journal: "epijinfo", Kind: "issue"}, ErrUnknownKind},
		{"article without id", Descriptor{Journal: "epijinfo", Kind: KindArticle}, ErrMissingID},
		{"volume without id", Descriptor{Journal: "epijinfo", Kind: KindVolume}, ErrMissingID},
		{"section without id", Descriptor{Journal: "epijinfo", Kind: KindSection}, ErrMissingID},
		{"static page without name", Descriptor{Journal: "epijinfo", Kind: KindStaticPage}, ErrMissingPage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.d.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTargetEnv(t *testing.T) {
	cases := []struct {
		d     Descriptor
		key   string
		value string
		want  bool
	}{
		{Descriptor{Kind: KindArticle, ID: "12"}, EnvTargetArticle, "12", true},
		{Descriptor{Kind: KindVolume, ID: "3"}, EnvTargetVolume, "3", true},
		{Descriptor{Kind: KindSection, ID: "7"}, EnvTargetSection, "7", true},
		{Descriptor{Kind: KindStaticPage, PageName: "about"}, EnvTargetPage, "about", true},
		{Descriptor{Kind: KindFull}, "", "", false},
	}
	for _, tc := range cases {
		key, value, ok := tc.d.TargetEnv()
		if ok != tc.want || key != tc.key || value != tc.value {
			t.Fatalf("TargetEnv(%s) = %q, %q, %v; want %q, %q, %v",
				tc.d.Kind, key, value, ok, tc.key, tc.value, tc.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		d    Descriptor
		want string
	}{
		{Descriptor{Journal: "epijinfo", Kind: KindArticle, ID: "12"}, "/out/epijinfo/articles/12"},
		{Descriptor{Journal: "epijinfo", Kind: KindVolume, ID: "3"}, "/out/epijinfo/volumes/3"},
		{Descriptor{Journal: "epijinfo", Kind: KindSection, ID: "7"}, "/out/epijinfo/sections/7"},
		{Descriptor{Journal: "epijinfo", Kind: KindStaticPage, PageName: "about"}, "/out/epijinfo/pages/about"},
		{Descriptor{Journal: "epijinfo", Kind: KindFull}, "/out/epijinfo"},
	}
	for _, tc := range cases {
		if got := tc.d.OutputPath("/out"); got != tc.want {
			t.Fatalf("OutputPath(%s) = %q, want %q", tc.d.Kind, got, tc.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind(" article "); err != nil {
		t.Fatalf("trimmed kind should parse, got %v", err)
	}
	if _, err := ParseKind(""); !errors.Is(err, ErrMissingKind) {
		t.Fatalf("expected ErrMissingKind, got %v", err)
	}
	if _, err := ParseKind("issue"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
