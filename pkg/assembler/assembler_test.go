package assembler

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	goerrors "github.com/go-errors/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	siteDir         = "/site"
	stylesheetMark  = "<?!= include('Stylesheet'); ?>"
	javascriptMark  = "<?!= include('JavaScript'); ?>"
	stylesheetBody  = "<style>x</style>"
	javascriptBody  = "<script>y</script>"
	previewFileName = "PreviewIndex.html"
)

func writeFile(t *testing.T, fsys afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(siteDir, name), []byte(content), 0644))
}

func readOutput(t *testing.T, fsys afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, filepath.Join(siteDir, previewFileName))
	require.NoError(t, err)
	return string(data)
}

// newSite 写入主文档以及默认的两个片段
func newSite(t *testing.T, index string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(siteDir, 0755))
	writeFile(t, fsys, "Index.html", index)
	writeFile(t, fsys, "Stylesheet.html", stylesheetBody)
	writeFile(t, fsys, "JavaScript.html", javascriptBody)
	return fsys
}

func defaultJob() Job {
	return Job{
		Document:  filepath.Join(siteDir, "Index.html"),
		Fragments: DefaultFragments(siteDir),
		Output:    filepath.Join(siteDir, previewFileName),
	}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestAssemble_InlinesBothFragments(t *testing.T) {
	fsys := newSite(t, "<html>"+stylesheetMark+javascriptMark+"</html>")
	logger, logs := observedLogger()

	result, err := New(fsys, logger).Assemble(defaultJob())
	require.NoError(t, err)

	want := "<html><style>x</style><script>y</script></html>"
	assert.Equal(t, want, readOutput(t, fsys))
	assert.Equal(t, len(want), result.Bytes)
	assert.Equal(t, len(want), result.Length)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Markers, 2)
	assert.Equal(t, "Stylesheet", result.Markers[0].Name)
	assert.Equal(t, "JavaScript", result.Markers[1].Name)

	assert.Equal(t, 2, logs.FilterMessage("找到占位符").Len())
	assert.Zero(t, logs.FilterMessage("未找到占位符").Len())
	success := logs.FilterMessage("已生成预览文件").All()
	require.Len(t, success, 1)
	assert.Equal(t, filepath.Join(siteDir, previewFileName), success[0].ContextMap()["output"])
}

func TestAssemble_MissingMarkerIsWarning(t *testing.T) {
	fsys := newSite(t, "<html>"+stylesheetMark+"</html>")
	logger, logs := observedLogger()

	result, err := New(fsys, logger).Assemble(defaultJob())
	require.NoError(t, err)

	out := readOutput(t, fsys)
	assert.Equal(t, "<html><style>x</style></html>", out)
	assert.NotContains(t, out, javascriptBody)
	assert.False(t, result.Markers[1].Found())

	warnings := logs.FilterMessage("未找到占位符").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "JavaScript", warnings[0].ContextMap()["name"])
}

func TestAssemble_EmptyDocument(t *testing.T) {
	fsys := newSite(t, "")
	logger, logs := observedLogger()

	result, err := New(fsys, logger).Assemble(defaultJob())
	require.NoError(t, err)

	exists, err := afero.Exists(fsys, filepath.Join(siteDir, previewFileName))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "", readOutput(t, fsys))
	assert.Zero(t, result.Length)
	assert.Equal(t, 2, logs.FilterMessage("未找到占位符").Len())
}

func TestAssemble_ReplacesEveryOccurrence(t *testing.T) {
	fsys := newSite(t, stylesheetMark+"|"+stylesheetMark+"|"+stylesheetMark+javascriptMark)

	result, err := New(fsys, nil).Assemble(defaultJob())
	require.NoError(t, err)

	out := readOutput(t, fsys)
	assert.Equal(t, 3, strings.Count(out, stylesheetBody))
	assert.Equal(t, 1, strings.Count(out, javascriptBody))
	assert.NotContains(t, out, stylesheetMark)
	assert.NotContains(t, out, javascriptMark)
	assert.Equal(t, 3, result.Markers[0].Count)
}

func TestAssemble_IsIdempotent(t *testing.T) {
	fsys := newSite(t, "<head>"+stylesheetMark+"</head><body>"+javascriptMark+"</body>")
	asm := New(fsys, nil)

	_, err := asm.Assemble(defaultJob())
	require.NoError(t, err)
	first := readOutput(t, fsys)

	_, err = asm.Assemble(defaultJob())
	require.NoError(t, err)
	assert.Equal(t, first, readOutput(t, fsys))
}

func TestAssemble_OverwritesLongerOutput(t *testing.T) {
	fsys := newSite(t, stylesheetMark)
	writeFile(t, fsys, previewFileName, strings.Repeat("stale ", 100))

	_, err := New(fsys, nil).Assemble(defaultJob())
	require.NoError(t, err)
	assert.Equal(t, stylesheetBody, readOutput(t, fsys))
}

func TestAssemble_MissingInputWritesNothing(t *testing.T) {
	fsys := newSite(t, stylesheetMark)
	require.NoError(t, fsys.Remove(filepath.Join(siteDir, "JavaScript.html")))

	_, err := New(fsys, nil).Assemble(defaultJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputUnreadable)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "JavaScript")

	var stacked *goerrors.Error
	assert.True(t, errors.As(err, &stacked))

	exists, _ := afero.Exists(fsys, filepath.Join(siteDir, previewFileName))
	assert.False(t, exists)
}

func TestAssemble_MissingOutputDirectory(t *testing.T) {
	fsys := newSite(t, stylesheetMark)
	job := defaultJob()
	job.Output = "/site/Preview Folder/preview_v6.html"

	_, err := New(fsys, nil).Assemble(job)
	assert.ErrorIs(t, err, ErrOutputWrite)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestAssemble_ReadOnlyOutput(t *testing.T) {
	fsys := afero.NewReadOnlyFs(newSite(t, stylesheetMark))

	_, err := New(fsys, nil).Assemble(defaultJob())
	assert.ErrorIs(t, err, ErrOutputWrite)
}

func TestAssemble_ErrorPolicyRejectsMissingMarker(t *testing.T) {
	fsys := newSite(t, "<html>"+stylesheetMark+"</html>")

	_, err := New(fsys, nil, WithMissingPolicy(PolicyError)).Assemble(defaultJob())
	assert.ErrorIs(t, err, ErrMarkerNotFound)
	assert.Contains(t, err.Error(), javascriptMark)

	exists, _ := afero.Exists(fsys, filepath.Join(siteDir, previewFileName))
	assert.False(t, exists)
}

func TestAssemble_ReportsUnresolvedIncludes(t *testing.T) {
	fsys := newSite(t, "<?!= include('Header'); ?>"+stylesheetMark+javascriptMark+"<?!= include('Footer'); ?>")
	logger, logs := observedLogger()

	result, err := New(fsys, logger).Assemble(defaultJob())
	require.NoError(t, err)

	assert.Equal(t, []string{"Header", "Footer"}, result.Unresolved)
	assert.Equal(t, 2, logs.FilterMessage("主文档中存在未绑定的 include").Len())
	assert.True(t, strings.HasPrefix(readOutput(t, fsys), "<?!= include('Header'); ?><style>"))
}

func TestAssemble_UnresolvedIncludesComeFromDocumentOnly(t *testing.T) {
	tests := []struct {
		name       string
		index      string
		stylesheet string
		want       []string
	}{
		{
			name:       "fragment containing its own marker",
			index:      stylesheetMark + javascriptMark,
			stylesheet: "<style>a</style>" + stylesheetMark,
		},
		{
			name:       "fragment containing another include",
			index:      stylesheetMark + javascriptMark,
			stylesheet: "<?!= include('Nested'); ?>",
		},
		{
			name:       "repeated unbound include reported once",
			index:      "<?!= include('Header'); ?>" + stylesheetMark + "<?!= include('Header'); ?>",
			stylesheet: stylesheetBody,
			want:       []string{"Header"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := newSite(t, tt.index)
			writeFile(t, fsys, "Stylesheet.html", tt.stylesheet)
			logger, logs := observedLogger()

			result, err := New(fsys, logger).Assemble(defaultJob())
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.Unresolved)
			assert.Equal(t, len(tt.want), logs.FilterMessage("主文档中存在未绑定的 include").Len())
			assert.Contains(t, readOutput(t, fsys), tt.stylesheet)
		})
	}
}

func TestAssemble_AtomicWrite(t *testing.T) {
	fsys := newSite(t, stylesheetMark+javascriptMark)
	writeFile(t, fsys, previewFileName, "previous")

	_, err := New(fsys, nil, WithAtomicWrite(true)).Assemble(defaultJob())
	require.NoError(t, err)
	assert.Equal(t, stylesheetBody+javascriptBody, readOutput(t, fsys))

	entries, err := afero.ReadDir(fsys, siteDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "leftover temp file %s", entry.Name())
	}
}

func TestAssemble_AtomicWriteOnDisk(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()
	for name, content := range map[string]string{
		"Index.html":      stylesheetMark + javascriptMark,
		"Stylesheet.html": stylesheetBody,
		"JavaScript.html": javascriptBody,
	} {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, name), []byte(content), 0644))
	}
	job := Job{
		Document:  filepath.Join(dir, "Index.html"),
		Fragments: DefaultFragments(dir),
		Output:    filepath.Join(dir, previewFileName),
	}

	_, err := New(fsys, nil, WithAtomicWrite(true)).Assemble(job)
	require.NoError(t, err)

	data, err := afero.ReadFile(fsys, job.Output)
	require.NoError(t, err)
	assert.Equal(t, stylesheetBody+javascriptBody, string(data))

	info, err := fsys.Stat(job.Output)
	require.NoError(t, err)
	assert.Equal(t, outputPerm, info.Mode().Perm())
}

func TestAssemble_CustomMarkerFormat(t *testing.T) {
	fsys := newSite(t, "<!-- @include Stylesheet --><!-- @include JavaScript -->")

	_, err := New(fsys, nil, WithMarkerFormat("<!-- @include {{name}} -->")).Assemble(defaultJob())
	require.NoError(t, err)
	assert.Equal(t, stylesheetBody+javascriptBody, readOutput(t, fsys))
}

func TestAssemble_InvalidMarkerFormat(t *testing.T) {
	fsys := newSite(t, stylesheetMark)

	_, err := New(fsys, nil, WithMarkerFormat("<?!= include(); ?>")).Assemble(defaultJob())
	assert.ErrorIs(t, err, ErrInvalidMarker)
}

func TestSubstitute_FragmentContainingOwnMarkerIsNotExpanded(t *testing.T) {
	content := "a" + stylesheetMark + "b"
	out, statuses := Substitute(stylesheetMark+stylesheetMark, []Binding{
		{Name: "Stylesheet", Marker: stylesheetMark, Content: content},
	})

	assert.Equal(t, content+content, out)
	assert.Equal(t, 2, strings.Count(out, stylesheetMark))
	assert.Equal(t, 2, statuses[0].Count)
}

func TestSubstitute_LaterMarkerAppliesToEarlierFragment(t *testing.T) {
	out, _ := Substitute(stylesheetMark+javascriptMark, []Binding{
		{Name: "Stylesheet", Marker: stylesheetMark, Content: "<a>" + javascriptMark},
		{Name: "JavaScript", Marker: javascriptMark, Content: "<b>"},
	})

	assert.Equal(t, "<a><b><b>", out)
}

func TestSubstitute_OrderIndependentForDistinctMarkers(t *testing.T) {
	doc := "x" + javascriptMark + "y" + stylesheetMark + "z" + stylesheetMark
	a := Binding{Name: "Stylesheet", Marker: stylesheetMark, Content: stylesheetBody}
	b := Binding{Name: "JavaScript", Marker: javascriptMark, Content: javascriptBody}

	forward, _ := Substitute(doc, []Binding{a, b})
	backward, _ := Substitute(doc, []Binding{b, a})
	assert.Equal(t, forward, backward)
}

func TestSubstitute_EmptyMarkerIsSkipped(t *testing.T) {
	out, statuses := Substitute("abc", []Binding{{Name: "none", Content: "zzz"}})
	assert.Equal(t, "abc", out)
	assert.False(t, statuses[0].Found())
}

func TestNormalizePolicy(t *testing.T) {
	tests := []struct {
		raw  string
		want Policy
	}{
		{"", PolicyWarn},
		{"warn", PolicyWarn},
		{" ERROR ", PolicyError},
		{"fatal", PolicyWarn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePolicy(tt.raw), "raw=%q", tt.raw)
	}
}
