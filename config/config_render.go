package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

var (
	ErrCycleVars                 = fmt.Errorf("cycle vars")
	ErrMissingVars               = fmt.Errorf("missing vars")
	ErrUnsupportedConfigFileType = fmt.Errorf("unsupported config file type")

	// A={{B}} is not valid TOML, it is rewritten as A="{{B:int}}" while merging
	unquotedVarRe = regexp.MustCompile(`=\s*\{\{([^}:]+)\}\}`)
	quotedVarRe   = regexp.MustCompile(`=\s*\"\{\{([^}:]+:int)\}\}\"`)
	typeMarkRe    = regexp.MustCompile(`\{\{([^}:]+:int)\}\}`)
)

type FileData struct {
	Name    string
	Content string
}

// Renderer merges config files, later files overriding earlier ones, and
// resolves the {{var}} references between them.
type Renderer struct {
	Files []FileData
	// LookupEnv resolves environment variables, typically os.LookupEnv
	LookupEnv func(key string) (string, bool)
	// EnvPrefix is prepended to a var name to look it up on the environment
	EnvPrefix string
}

func NewRenderer(files []FileData, envPrefix string) *Renderer {
	return &Renderer{
		Files:     files,
		LookupEnv: os.LookupEnv,
		EnvPrefix: envPrefix,
	}
}

// Render merges all the files and resolves the vars inside
func (r *Renderer) Render() (string, error) {
	merged, err := r.Merge()
	if err != nil {
		return "", fmt.Errorf("fail to merge files. Err: %w", err)
	}
	return r.ResolveVars(merged)
}

func (r *Renderer) Merge() (string, error) {
	k := koanf.New(".")
	for _, file := range r.Files {
		content := quoteVars(file.Content)
		if err := k.Load(rawbytes.Provider([]byte(content)), toml.Parser()); err != nil {
			log.Errorf("error loading file %s. Err:%v.FileData: %v", file.Name, err, content)
			return "", fmt.Errorf("fail to load converted template %s to toml. Err: %w", file.Name, err)
		}
	}
	marshaled, err := k.Marshal(toml.Parser())
	if err != nil {
		return "", fmt.Errorf("fail to marshal to toml. Err: %w", err)
	}
	return unquoteVars(string(marshaled)), nil
}

func (r *Renderer) ResolveVars(config string) (string, error) {
	// vars that point to another var keep the "{{tag}}" value at this step
	tpl, values, err := r.readTemplateAndValues(config)
	if err != nil {
		return "", err
	}
	rendered := removeTypeMarks(r.execute(tpl, values))
	if missing := r.GetUnresolvedVars(tpl, values); len(missing) > 0 {
		return rendered, fmt.Errorf("missing vars: %v. Err: %w", missing, ErrMissingVars)
	}
	// every var is defined somewhere, what is left are chains (A={{B}}, B={{C}})
	// or cycles (A={{B}}, B={{A}})
	resolved, err := r.ResolveCycle(rendered)
	if err != nil {
		return config, err
	}
	return resolved, nil
}

// ResolveCycle renders the config until no var is left. Each pass must
// resolve at least one var, otherwise the remaining ones form a cycle.
func (r *Renderer) ResolveCycle(partiallyResolved string) (string, error) {
	current := unquoteVars(partiallyResolved)
	pending := r.GetVars(current)
	if len(pending) == 0 {
		return partiallyResolved, nil
	}
	log.Debugf("ResolveCycle: pending vars: %v", pending)
	for len(pending) > 0 {
		previous := pending
		tpl, values, err := r.readTemplateAndValues(current)
		if err != nil {
			log.Errorf("ResolveCycle: fails readTemplateAndValues. Err: %v. Data:%s", err, current)
			return "", fmt.Errorf("fails to read template ResolveCycle. Err: %w", err)
		}
		current = removeTypeMarks(unquoteVars(r.execute(tpl, values)))
		pending = r.GetVars(current)
		if len(pending) == len(previous) {
			return partiallyResolved, fmt.Errorf("not resolved cycle vars: %v. Err: %w", pending, ErrCycleVars)
		}
	}
	return current, nil
}

// readTemplateAndValues expects the vars unquoted: A={{B}}, not A="{{B}}"
func (r *Renderer) readTemplateAndValues(data string) (*fasttemplate.Template, map[string]interface{}, error) {
	tpl, err := fasttemplate.NewTemplate(data, startTag, endTag)
	if err != nil {
		return nil, nil, fmt.Errorf("fail to load template. Err:%w", err)
	}
	quoted := quoteVars(data)
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(quoted)), toml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("error parsing template values. Content: %s. Err: %w", quoted, err)
	}
	return tpl, k.All(), nil
}

func quoteVars(data string) string {
	return unquotedVarRe.ReplaceAllString(data, `= "{{${1}:int}}"`)
}

func unquoteVars(data string) string {
	return quotedVarRe.ReplaceAllStringFunc(data, func(match string) string {
		submatch := quotedVarRe.FindStringSubmatch(match)
		if len(submatch) > 1 {
			return "= " + startTag + strings.Split(submatch[1], ":")[0] + endTag
		}
		return match
	})
}

func removeTypeMarks(data string) string {
	return typeMarkRe.ReplaceAllStringFunc(data, func(match string) string {
		submatch := typeMarkRe.FindStringSubmatch(match)
		if len(submatch) > 1 {
			return startTag + strings.Split(submatch[1], ":")[0] + endTag
		}
		return match
	})
}

// execute fills the vars from the environment first, then from the values
// defined on the config. Unknown vars are left untouched.
func (r *Renderer) execute(tpl *fasttemplate.Template, values map[string]interface{}) string {
	return tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := r.lookupEnv(tag); ok {
			return w.Write([]byte(v))
		}
		if v, ok := values[tag]; ok {
			return fmt.Fprintf(w, "%v", v)
		}
		return w.Write([]byte(startTag + tag + endTag))
	})
}

// GetUnresolvedVars returns the vars of the template that are neither on the
// environment nor on values
func (r *Renderer) GetUnresolvedVars(tpl *fasttemplate.Template, values map[string]interface{}) []string {
	var unresolved []string
	tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if _, ok := r.lookupEnv(tag); ok {
			return 0, nil
		}
		if _, ok := values[tag]; !ok && !contains(unresolved, tag) {
			unresolved = append(unresolved, tag)
		}
		return 0, nil
	})
	return unresolved
}

// GetVars returns every var of the config, repeated as many times as it appears
func (r *Renderer) GetVars(config string) []string {
	tpl, err := fasttemplate.NewTemplate(config, startTag, endTag)
	if err != nil {
		return []string{}
	}
	var vars []string
	tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		vars = append(vars, tag)
		return 0, nil
	})
	return vars
}

func (r *Renderer) lookupEnv(tag string) (string, bool) {
	return r.LookupEnv(r.EnvPrefix + "_" + strings.ReplaceAll(tag, ".", "_"))
}

func contains(values []string, search string) bool {
	for _, v := range values {
		if v == search {
			return true
		}
	}
	return false
}

func readFileToString(filename string) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func convertFileToToml(fileData string, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "json":
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider([]byte(fileData)), json.Parser()); err != nil {
			return fileData, fmt.Errorf("error loading json file. Err: %w", err)
		}
		tomlData, err := toml.Parser().Marshal(k.Raw())
		if err != nil {
			return fileData, fmt.Errorf("error converting json to toml. Err: %w", err)
		}
		return string(tomlData), nil
	case "yml", "yaml", "ini":
		return fileData, fmt.Errorf("cant convert from %s to TOML. Err: %w", fileType, ErrUnsupportedConfigFileType)
	default:
		log.Warnf("filetype %s unknown, assuming is a TOML file", fileType)
		return fileData, nil
	}
}
