package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importEdge struct {
	file string // module-relative, slash separated
	imp  string
}

type violation struct {
	importEdge
	rule string
}

func TestImportBoundaries(t *testing.T) {
	modulePath, edges := moduleImports(t)

	var violations []violation
	for _, e := range edges {
		layer := layerFor(e.file)
		if layer == "" {
			continue
		}
		for _, bad := range disallowedImports(modulePath, layer) {
			if strings.HasPrefix(e.imp, bad) {
				violations = append(violations, violation{importEdge: e, rule: bad})
				break
			}
		}
	}
	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

// Only internal/app wires the transport; everything else stays callable
// without gin.
func TestHTTPImportedOnlyByApp(t *testing.T) {
	modulePath, edges := moduleImports(t)
	httpPkg := modulePath + "/internal/http"

	var offenders []string
	for _, e := range edges {
		if strings.HasPrefix(e.file, "internal/http/") || strings.HasPrefix(e.file, "internal/app/") {
			continue
		}
		if e.imp == httpPkg || strings.HasPrefix(e.imp, httpPkg+"/") {
			offenders = append(offenders, fmt.Sprintf("- %s imports %q", e.file, e.imp))
		}
	}
	if len(offenders) > 0 {
		t.Fatalf("internal/http imported outside internal/app:\n%s", strings.Join(offenders, "\n"))
	}
}

func TestDomainStaysFreeOfTransport(t *testing.T) {
	_, edges := moduleImports(t)
	for _, e := range edges {
		if !strings.HasPrefix(e.file, "internal/domain/") {
			continue
		}
		switch {
		case strings.HasPrefix(e.imp, "github.com/gin-gonic/"),
			strings.HasPrefix(e.imp, "github.com/redis/"),
			e.imp == "net/http":
			t.Fatalf("%s imports transport package %q", e.file, e.imp)
		}
	}
}

// moduleImports parses every Go file under internal/ and returns the module
// path with one edge per import.
func moduleImports(t *testing.T) (string, []importEdge) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var edges []importEdge
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules", ".gocache":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, is := range f.Imports {
			if is == nil || is.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(is.Path.Value)
			if err != nil {
				continue
			}
			edges = append(edges, importEdge{file: filepath.ToSlash(rel), imp: imp})
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath, edges
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/observability/"):
		return "observability"
	case strings.HasPrefix(rel, "internal/realtime/"):
		return "realtime"
	case strings.HasPrefix(rel, "internal/modules/"):
		return "modules"
	case strings.HasPrefix(rel, "internal/jobs/"):
		return "jobs"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	internal := modulePath + "/internal/"
	switch layer {
	case "domain":
		return []string{
			internal + "data/",
			internal + "platform/",
			internal + "observability",
			internal + "realtime/",
			internal + "modules/",
			internal + "jobs/",
			internal + "http",
			internal + "app",
		}
	case "data":
		return []string{
			internal + "modules/",
			internal + "jobs/",
			internal + "realtime/",
			internal + "http",
			internal + "app",
		}
	case "platform", "observability":
		return []string{
			internal + "data/",
			internal + "modules/",
			internal + "jobs/",
			internal + "http",
			internal + "app",
		}
	case "realtime", "jobs":
		return []string{
			internal + "data/",
			internal + "modules/",
			internal + "http",
			internal + "app",
		}
	case "modules":
		return []string{
			internal + "http",
			internal + "app",
		}
	default:
		return nil
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
