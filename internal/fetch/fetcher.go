package fetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SourceFile is one retained file of an extracted snapshot. It lives only
// long enough to build the analysis prompt and compute aggregate counts.
type SourceFile struct {
	Path    string
	Content string
	Lines   int
}

// Result is the bounded source corpus of one repository snapshot.
type Result struct {
	Files      []SourceFile
	TotalLines int
	RepoName   string
	CommitSha  string
	TokenCount int
}

// Provider is the slice of the hosting-provider client the fetcher needs.
type Provider interface {
	DownloadTarball(ctx context.Context, key string) (io.ReadCloser, int64, error)
	ResolveLatestCommit(ctx context.Context, key string) string
}

// sourceExtensions is the allowlist of file types retained by the walk.
var sourceExtensions = map[string]struct{}{
	".rs": {}, ".ts": {}, ".tsx": {}, ".js": {}, ".jsx": {},
	".py": {}, ".go": {}, ".sol": {}, ".move": {},
	".toml": {}, ".json": {}, ".yaml": {}, ".yml": {}, ".md": {},
}

// skipDirs are build, dependency, and VCS directories never descended into.
var skipDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "target": {}, "dist": {}, "build": {},
	".next": {}, "__pycache__": {}, ".venv": {}, "vendor": {},
	"pkg": {}, "artifacts": {},
}

// skipFiles are generated lockfiles excluded by exact name.
var skipFiles = map[string]struct{}{
	"package-lock.json": {}, "yarn.lock": {}, "pnpm-lock.yaml": {},
	"Cargo.lock": {}, "go.sum": {}, "poetry.lock": {}, "bun.lockb": {},
}

// Fetcher downloads a repository snapshot archive, unpacks it into an
// ephemeral workspace, and extracts a line- and token-bounded source corpus.
type Fetcher struct {
	provider Provider
	limits   Limits
	tmpRoot  string
}

func New(provider Provider, limits Limits) *Fetcher {
	if limits.MaxArchiveBytes <= 0 {
		limits = DefaultLimits()
	}
	return &Fetcher{
		provider: provider,
		limits:   limits,
		tmpRoot:  os.TempDir(),
	}
}

// Fetch retrieves and extracts the snapshot for key ("owner/name"). The
// workspace directory is removed on every exit path.
func (f *Fetcher) Fetch(ctx context.Context, key string) (*Result, error) {
	workspace := filepath.Join(f.tmpRoot, "verepo-"+uuid.NewString())
	defer cleanup(workspace)

	if err := f.download(ctx, key, workspace); err != nil {
		return nil, err
	}

	files, totalLines, err := f.collect(workspace)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoSourceFiles
	}

	tokenCount := estimateTokens(files)
	if tokenCount > f.limits.MaxTokens {
		return nil, &LimitError{
			Kind:          LimitTokens,
			Observed:      int64(tokenCount),
			Ceiling:       int64(f.limits.MaxTokens),
			ObservedLines: totalLines,
		}
	}

	return &Result{
		Files:      files,
		TotalLines: totalLines,
		RepoName:   key,
		CommitSha:  f.provider.ResolveLatestCommit(ctx, key),
		TokenCount: tokenCount,
	}, nil
}

// download streams the tar.gz snapshot into workspace. The byte ceiling is
// enforced twice: once against the advisory Content-Length header and again
// with a counter on the raw stream, because the header may be absent or
// wrong.
func (f *Fetcher) download(ctx context.Context, key, workspace string) error {
	body, size, err := f.provider.DownloadTarball(ctx, key)
	if err != nil {
		return &ProviderError{Err: err}
	}
	defer func() { _ = body.Close() }()

	if size > f.limits.MaxArchiveBytes {
		return &LimitError{Kind: LimitBytes, Observed: size, Ceiling: f.limits.MaxArchiveBytes}
	}

	counter := &byteBudgetReader{r: body, budget: f.limits.MaxArchiveBytes}
	gz, err := gzip.NewReader(counter)
	if err != nil {
		if counter.breached {
			return &LimitError{Kind: LimitBytes, Observed: counter.n, Ceiling: f.limits.MaxArchiveBytes}
		}
		return &ProviderError{Err: err}
	}
	defer func() { _ = gz.Close() }()

	if err := f.untar(gz, workspace); err != nil {
		if counter.breached {
			return &LimitError{Kind: LimitBytes, Observed: counter.n, Ceiling: f.limits.MaxArchiveBytes}
		}
		return &ProviderError{Err: err}
	}
	return nil
}

// untar unpacks regular files into workspace, discarding the synthetic
// top-level wrapper directory the snapshot format always introduces.
func (f *Fetcher) untar(r io.Reader, workspace string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		rel := stripArchiveRoot(hdr.Name)
		if rel == "" {
			continue
		}
		dest := filepath.Join(workspace, filepath.FromSlash(rel))
		if !strings.HasPrefix(dest, workspace+string(os.PathSeparator)) {
			// Entry tries to escape the workspace; drop it.
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, tr)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
}

// collect walks the unpacked tree applying the retention rules and the
// total-line ceiling. It aborts the instant the ceiling is breached rather
// than silently truncating the file set.
func (f *Fetcher) collect(workspace string) ([]SourceFile, int, error) {
	var (
		files      []SourceFile
		totalLines int
	)
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip && path != workspace {
				return filepath.SkipDir
			}
			return nil
		}
		if _, skip := skipFiles[d.Name()]; skip {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := sourceExtensions[ext]; !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		// Oversized files are treated as generated or binary-like.
		if info.Size() > f.limits.MaxFileBytes {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		content, lines := boundLines(string(raw), f.limits.MaxLineChars)

		totalLines += lines
		if totalLines > f.limits.MaxTotalLines {
			return &LimitError{
				Kind:     LimitLines,
				Observed: int64(totalLines),
				Ceiling:  int64(f.limits.MaxTotalLines),
			}
		}

		rel, err := filepath.Rel(workspace, path)
		if err != nil {
			return nil
		}
		files = append(files, SourceFile{
			Path:    filepath.ToSlash(rel),
			Content: content,
			Lines:   lines,
		})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return files, totalLines, nil
}

// boundLines counts lines and replaces any line longer than maxChars with
// the truncation marker, leaving every other line untouched.
func boundLines(content string, maxChars int) (string, int) {
	lines := strings.Split(content, "\n")
	truncated := false
	for i, line := range lines {
		if len(line) > maxChars {
			lines[i] = TruncatedLineMarker
			truncated = true
		}
	}
	if !truncated {
		return content, len(lines)
	}
	return strings.Join(lines, "\n"), len(lines)
}

// estimateTokens approximates prompt cost from the concatenated corpus,
// including the per-file path headers the prompt builder adds.
func estimateTokens(files []SourceFile) int {
	chars := 0
	for _, file := range files {
		chars += len(file.Path) + len(file.Content) + 32
	}
	return chars / charsPerToken
}

// stripArchiveRoot removes the first path component of a tar entry name.
// Entries that resolve outside the archive root are dropped entirely.
func stripArchiveRoot(name string) string {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return ""
	}
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// cleanup best-effort removes the workspace; it never fails the request.
func cleanup(dir string) {
	_ = os.RemoveAll(dir)
}

// byteBudgetReader counts bytes and fails the stream the instant the
// cumulative total exceeds the budget.
type byteBudgetReader struct {
	r        io.Reader
	n        int64
	budget   int64
	breached bool
}

func (b *byteBudgetReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	if b.n > b.budget {
		b.breached = true
		return n, &LimitError{Kind: LimitBytes, Observed: b.n, Ceiling: b.budget}
	}
	return n, err
}
