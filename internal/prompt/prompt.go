// Package prompt renders the system, user and summary prompts.
package prompt

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
)

var (
	//go:embed templates/system.md
	systemRaw string
	//go:embed templates/user.md
	userRaw string
	//go:embed templates/summary.md
	summaryRaw string

	systemTmpl  = template.Must(template.New("system").Parse(systemRaw))
	userTmpl    = template.Must(template.New("user").Parse(userRaw))
	summaryTmpl = template.Must(template.New("summary").Parse(summaryRaw))
)

// DefaultSystem is used when ui.system_prompt is empty.
const DefaultSystem = "You are a local personal assistant with long-term memory."

// User holds everything assembled for one chat turn.
type User struct {
	Input      string
	Working    []string
	Memories   []string
	Rules      []string
	Enrichment []string
}

// Summary is the input to a periodic digest.
type Summary struct {
	Period    string
	MaxTokens int
	Lines     []string
}

func System(base string, reflections []string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystem
	}
	return render(systemTmpl, struct {
		Base        string
		Reflections []string
	}{base, reflections})
}

func BuildUser(in User) (string, error) {
	return render(userTmpl, in)
}

func BuildSummary(in Summary) (string, error) {
	return render(summaryTmpl, in)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute prompt template", goerr.V("template", t.Name()))
	}
	return strings.TrimSpace(buf.String()), nil
}
