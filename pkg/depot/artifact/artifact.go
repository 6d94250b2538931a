// Package artifact groups raw hub file listings into logical Artifact
// entries, including sharded-file detection and quantization/size-tag
// parsing. Grounded on the size/parameter formatting helpers in
// sgl-project-ome's pkg/hfutil/modelconfig/interface.go (FormatSize,
// FormatParamCount, DtypeSizeBytes table) adapted to this depot's
// own Artifact shape (spec.md §3.3, §4.2).
package artifact

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// File is one raw entry as reported by the hub client.
type File struct {
	Path string
	Size int64
}

// Artifact is a logically atomic model, possibly sharded across
// multiple files (spec.md §3.3).
type Artifact struct {
	Name         string
	Format       string
	Files        []File
	TotalSize    int64
	Quantization string
	SizeCategory string
}

var recognizedExtensions = map[string]bool{
	".bin":         true,
	".safetensors": true,
	".gguf":        true,
	".pt":          true,
	".pth":         true,
	".ckpt":        true,
	".model":       true,
}

var shardPattern = regexp.MustCompile(`^(?P<base>.+?)-(?P<num>\d{5})-of-(?P<total>\d{5})\.(?P<ext>[^.]+)$`)

// Analyze filters files to recognized model-weight extensions, groups
// shards, and returns artifacts sorted by name (spec.md §4.2).
func Analyze(files []File) []Artifact {
	filtered := make([]File, 0, len(files))
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Path))
		if recognizedExtensions[ext] {
			filtered = append(filtered, f)
		}
	}

	type shardKey struct {
		base, ext string
	}
	type shardFile struct {
		num  int
		file File
	}
	shardGroups := make(map[shardKey][]shardFile)
	var singles []File

	for _, f := range filtered {
		base := path.Base(f.Path)
		m := shardPattern.FindStringSubmatch(base)
		if m == nil {
			singles = append(singles, f)
			continue
		}
		names := shardPattern.SubexpNames()
		group := map[string]string{}
		for i, name := range names {
			if i == 0 || name == "" {
				continue
			}
			group[name] = m[i]
		}
		num, err := strconv.Atoi(group["num"])
		if err != nil {
			singles = append(singles, f)
			continue
		}
		key := shardKey{base: group["base"], ext: group["ext"]}
		shardGroups[key] = append(shardGroups[key], shardFile{num: num, file: f})
	}

	var artifacts []Artifact
	for key, shards := range shardGroups {
		sort.Slice(shards, func(i, j int) bool { return shards[i].num < shards[j].num })
		var total int64
		fs := make([]File, 0, len(shards))
		for _, s := range shards {
			total += s.file.Size
			fs = append(fs, s.file)
		}
		name := key.base
		a := Artifact{
			Name:      name,
			Format:    strings.TrimPrefix(key.ext, "."),
			Files:     fs,
			TotalSize: total,
		}
		a.Quantization, a.SizeCategory = parseTags(name)
		artifacts = append(artifacts, a)
	}

	for _, f := range singles {
		base := path.Base(f.Path)
		ext := path.Ext(base)
		name := strings.TrimSuffix(base, ext)
		a := Artifact{
			Name:      name,
			Format:    strings.TrimPrefix(strings.ToLower(ext), "."),
			Files:     []File{f},
			TotalSize: f.Size,
		}
		a.Quantization, a.SizeCategory = parseTags(name)
		artifacts = append(artifacts, a)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts
}

// HasGap reports whether a sharded artifact's files skip an index,
// e.g. 00001-of-00003 and 00003-of-00003 present but not 00002. The
// analyzer still returns artifacts with gaps (spec.md §4.2 edge case);
// the download manager rejects them before transferring.
func (a Artifact) HasGap() bool {
	if len(a.Files) < 2 {
		return false
	}
	nums := make([]int, 0, len(a.Files))
	for _, f := range a.Files {
		base := path.Base(f.Path)
		m := shardPattern.FindStringSubmatch(base)
		if m == nil {
			return false
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return false
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for i := 1; i < len(nums); i++ {
		if nums[i] != nums[i-1]+1 {
			return true
		}
	}
	return false
}

var quantPattern = regexp.MustCompile(`(?i)\b(q4_k_m|q4_k_s|q5_k_m|q5_k_s|q8_0|q4_0|q5_0|q6_k|q3_k_m|q2_k|fp16|bf16|fp32|int8|int4|e4m3|e5m2)\b`)
var sizeCategoryPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*[bB]\b`)

// parseTags extracts an optional quantization tag and size category
// from an artifact's base name (spec.md §3.3's "parsed from name").
func parseTags(name string) (quant string, sizeCategory string) {
	if m := quantPattern.FindString(name); m != "" {
		quant = strings.ToUpper(m)
	}
	if m := sizeCategoryPattern.FindStringSubmatch(name); m != nil {
		sizeCategory = m[1] + "B"
	}
	return quant, sizeCategory
}

// FormatSize renders a byte count in decimal (KB/MB/...) units, the
// form used for human-facing artifact listings.
func FormatSize(size int64) string {
	const (
		kb = 1000
		mb = 1000 * kb
		gb = 1000 * mb
		tb = 1000 * gb
	)
	switch {
	case size < kb:
		return fmt.Sprintf("%d B", size)
	case size < mb:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(kb))
	case size < gb:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
	case size < tb:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(gb))
	default:
		return fmt.Sprintf("%.2f TB", float64(size)/float64(tb))
	}
}
