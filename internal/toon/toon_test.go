package toon

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"carriage return", "a\rb", `"a\rb"`},
		{"true keyword", "true", `"true"`},
		{"True keyword", "True", `"True"`},
		{"false keyword", "false", `"false"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"zero", "0", "0"},
		{"leading zero invalid", "01", "01"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"bracket", "a[b", `"a[b"`},
		{"brace", "a{b", `"a{b"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"path", "src/Main.php", "src/Main.php"},
		{"fqsen", `\App\run`, `"\\App\\run"`},
		{"method", "Foo::__construct", `"Foo::__construct"`},
		{"signature no special", "run(int $x)", "run(int $x)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	widget := fqsen.NewClassName("App", "Widget")
	im := &model.IndexMap{
		RepoName: "myrepo",
		Root:     "myrepo",
		Files: []model.FileInfo{
			{Path: "src/Widget.php", Language: "php", Rank: 0.75},
			{Path: "src/util.php", Language: "php", Rank: 0.25},
		},
		Callables: []*model.Method{
			{
				FQSEN:     fqsen.NewMethodName(widget, "make"),
				File:      "src/Widget.php",
				Line:      4,
				Signature: "make()",
				Static:    true,
			},
			{
				FQSEN:     fqsen.NewFunctionName("", "helper"),
				File:      "src/util.php",
				Line:      2,
				Signature: "helper($x)",
			},
		},
		CallEdges: []model.CallEdge{
			{Caller: `\App\Widget::make`, Callee: `\helper`},
		},
		Deps: []model.Dependency{
			{
				Source:  "src/Widget.php",
				Target:  "src/util.php",
				Symbols: []string{"helper"},
			},
		},
	}

	got := Encode(im)

	want := []string{
		"repo: myrepo",
		"root: myrepo",
		"files[2]{path,language,rank}:",
		"  src/Widget.php,php,0.7500",
		"  src/util.php,php,0.2500",
		"callables[2]{fqsen,kind,file,line,signature}:",
		`  "\\App\\Widget::make",static,src/Widget.php,4,make()`,
		`  "\\helper",function,src/util.php,2,helper($x)`,
		"dependencies[1]{source,target,symbols}:",
		"  src/Widget.php,src/util.php,helper",
		"calls[1]{caller,callee}:",
		`  "\\App\\Widget::make","\\helper"`,
	}
	if diff := cmp.Diff(want, strings.Split(got, "\n")); diff != "" {
		t.Errorf("Encode (-want +got):\n%s", diff)
	}
}

func TestEncodeOptionalSections(t *testing.T) {
	t.Parallel()

	im := &model.IndexMap{
		RepoName: "r",
		Root:     "r",
		Unresolved: []model.Unresolved{
			{Caller: "<main>", Call: "boot()", File: "index.php", Line: 3},
		},
		Unused: []string{`\orphan`},
		Diagnostics: []model.Diagnostic{
			{Kind: "redeclaration", Subject: `\dup`, File: "b.php", Line: 1, Message: "first declared in a.php:1"},
		},
	}

	got := Encode(im)
	for _, section := range []string{
		"unresolved[1]{caller,call,file,line}:\n  <main>,boot(),index.php,3",
		"unused[1]{fqsen}:\n  \"\\\\orphan\"",
		"diagnostics[1]{kind,subject,file,line,message}:\n  redeclaration,\"\\\\dup\",b.php,1,\"first declared in a.php:1\"",
	} {
		if !strings.Contains(got, section) {
			t.Errorf("missing section %q in:\n%s", section, got)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	im := &model.IndexMap{
		RepoName: "empty",
		Root:     "empty",
	}

	got := Encode(im)
	if !strings.Contains(got, "files[0]{path,language,rank}:") {
		t.Errorf("expected empty files section, got:\n%s", got)
	}
	if !strings.Contains(got, "callables[0]{fqsen,kind,file,line,signature}:") {
		t.Errorf("expected empty callables section, got:\n%s", got)
	}
	for _, absent := range []string{"unresolved", "unused", "diagnostics"} {
		if strings.Contains(got, absent) {
			t.Errorf("unexpected %s section in:\n%s", absent, got)
		}
	}
}
