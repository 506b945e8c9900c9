// Package language is the static registry of supported toolchains.
//
// Each supported language maps to exactly one Descriptor: the container image
// that holds its toolchain, the source file extension, and a command template.
// The registry is built once at package init and never mutated, so it needs no
// locking.
//
// TEMPLATES:
// A template is a trusted, registry-authored shell command. Only two
// placeholders may appear in it:
//
//	{file}    the in-sandbox path of the staged source file
//	{workdir} the in-sandbox working directory
//
// User code is never interpolated into a template. It is written to a file
// that the sandboxed command reads.
package language

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sakif/coderunner/internal/apperror"
)

// Language is the canonical, lower-case identifier of a supported toolchain.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	Java       Language = "java"
	Cpp        Language = "cpp"
	C          Language = "c"
	Go         Language = "go"
	Ruby       Language = "ruby"
	Bash       Language = "bash"
)

const (
	PlaceholderFile    = "{file}"
	PlaceholderWorkdir = "{workdir}"
)

// Descriptor describes how to run one language inside the sandbox.
type Descriptor struct {
	Language  Language `json:"language"`
	Image     string   `json:"image"`
	Extension string   `json:"extension"`
	Template  string   `json:"-"`
}

// SourceName is the file name the source is staged under.
// javac requires the file name to match the public class, so Java code is always
// staged as Main.java; code whose public class is not Main fails to compile.
func (d Descriptor) SourceName() string {
	if d.Language == Java {
		return "Main." + d.Extension
	}
	return "code." + d.Extension
}

// Compiled binaries and class files go to /tmp: the workspace mount is read-only.
var registry = map[Language]Descriptor{
	Python: {
		Language:  Python,
		Image:     "python:3.11-slim",
		Extension: "py",
		Template:  "python {file}",
	},
	JavaScript: {
		Language:  JavaScript,
		Image:     "node:20-slim",
		Extension: "js",
		Template:  "node {file}",
	},
	Java: {
		Language:  Java,
		Image:     "eclipse-temurin:17-jdk",
		Extension: "java",
		Template:  "javac -d /tmp {file} && java -cp /tmp Main",
	},
	Cpp: {
		Language:  Cpp,
		Image:     "gcc:12",
		Extension: "cpp",
		Template:  "g++ -std=c++17 {file} -O2 -o /tmp/a.out && /tmp/a.out",
	},
	C: {
		Language:  C,
		Image:     "gcc:12",
		Extension: "c",
		Template:  "gcc {file} -O2 -o /tmp/a.out && /tmp/a.out",
	},
	Go: {
		Language:  Go,
		Image:     "golang:1.20",
		Extension: "go",
		Template:  "cd {workdir} && go run {file}",
	},
	Ruby: {
		Language:  Ruby,
		Image:     "ruby:3.2-slim",
		Extension: "rb",
		Template:  "ruby {file}",
	},
	Bash: {
		Language:  Bash,
		Image:     "bash:5.2",
		Extension: "sh",
		Template:  "bash {file}",
	},
}

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

func init() {
	for key, d := range registry {
		if key != d.Language {
			panic(fmt.Sprintf("language: registry key %q does not match descriptor %q", key, d.Language))
		}
		if err := ValidateTemplate(d.Template); err != nil {
			panic(fmt.Sprintf("language: %s: %v", key, err))
		}
	}
}

// Resolve looks up a descriptor. The key is trimmed and lower-cased first, so
// "Python" and "python" resolve identically.
func Resolve(key string) (Descriptor, error) {
	d, ok := registry[Language(strings.ToLower(strings.TrimSpace(key)))]
	if !ok {
		return Descriptor{}, apperror.UnsupportedLanguage(key)
	}
	return d, nil
}

// All returns every descriptor sorted by language key.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// Images returns the distinct runtime images of every registered language.
func Images() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, d := range All() {
		if seen[d.Image] {
			continue
		}
		seen[d.Image] = true
		refs = append(refs, d.Image)
	}
	return refs
}

// ValidateTemplate checks that a template references {file} and no placeholder
// other than {file} and {workdir}.
func ValidateTemplate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return fmt.Errorf("empty command template")
	}
	for _, p := range placeholderPattern.FindAllString(tpl, -1) {
		if p != PlaceholderFile && p != PlaceholderWorkdir {
			return fmt.Errorf("template %q references unknown placeholder %s", tpl, p)
		}
	}
	if !strings.Contains(tpl, PlaceholderFile) {
		return fmt.Errorf("template %q does not reference %s", tpl, PlaceholderFile)
	}
	return nil
}

// Render substitutes the two sanctioned placeholders and nothing else.
func Render(tpl, file, workdir string) string {
	return strings.NewReplacer(
		PlaceholderFile, file,
		PlaceholderWorkdir, workdir,
	).Replace(tpl)
}
