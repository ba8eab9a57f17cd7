package media

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// MaxDescribed caps how many lookup results are shown to the model.
const MaxDescribed = 10

// QualityProfiles maps the server's default quality profile ids to names.
var QualityProfiles = map[int64]string{
	2: "SD",
	3: "720p",
	4: "1080p",
	5: "2160p",
	6: "720p/1080p",
	7: "Any",
}

// Describe renders up to MaxDescribed records, one line each.
func Describe(kind Kind, records []Record) string {
	if len(records) > MaxDescribed {
		records = records[:MaxDescribed]
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = DescribeOne(kind, r)
	}
	return strings.Join(lines, "\n")
}

// DescribeOne renders a record as ';'-separated plain-English facts.
func DescribeOne(kind Kind, r Record) string {
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	parts = append(parts, r.Text("title"))
	add("status %s year %s", r.Text("status"), r.Text("year"))

	if id, ok := r.Int("id"); ok && id != 0 {
		parts = append(parts, "available on the server")
		add("id %d", id)
	} else {
		parts = append(parts, "unavailable on the server")
	}

	if profile, ok := r.Int("qualityProfileId"); ok {
		if name, known := QualityProfiles[profile]; known {
			add("quality wanted %s", name)
		}
	}
	if ext := r.Text(kind.IDKey()); ext != "" {
		add("%s %s", kind.IDKey(), ext)
	}

	if kind == KindMovie {
		parts = append(parts, describeFile(r)...)
	}

	if runtime := r.Text("runtime"); runtime != "" {
		add("runtime %s minutes", runtime)
	}
	if kind == KindSeries {
		if airTime := r.Text("airTime"); airTime != "" {
			add("airTime %s", airTime)
		}
		if network := r.Text("network"); network != "" {
			add("network %s", network)
		}
	}
	if cert := r.Text("certification"); cert != "" {
		add("certification %s", cert)
	}
	if genres := r.Strings("genres"); len(genres) > 0 {
		add("genres %s", strings.Join(genres, ", "))
	}
	if studio := r.Text("studio"); studio != "" {
		add("studio %s", studio)
	}
	if ratings := describeRatings(r); ratings != "" {
		add("ratings %s", ratings)
	}

	return strings.Join(parts, ";")
}

func describeFile(r Record) []string {
	if has, _ := r["hasFile"].(bool); !has {
		return []string{"no file on disk"}
	}

	var parts []string
	if size, ok := r.Int("sizeOnDisk"); ok && size >= 0 {
		parts = append(parts, "file size "+humanize.IBytes(uint64(size)))
	}

	file := r.Map("movieFile")
	if file == nil {
		return parts
	}
	if name := file.Map("quality").Map("quality").Text("name"); name != "" {
		parts = append(parts, "quality "+name)
	}
	if res := file.Map("mediaInfo").Text("resolution"); res != "" {
		parts = append(parts, "resolution "+res)
	}
	if langs, ok := file["languages"].([]any); ok && len(langs) > 0 {
		names := make([]string, 0, len(langs))
		for _, l := range langs {
			if m, ok := l.(map[string]any); ok {
				names = append(names, Record(m).Text("name"))
			}
		}
		parts = append(parts, "languages "+strings.Join(names, ", "))
	}
	if edition := file.Text("edition"); edition != "" {
		parts = append(parts, "edition "+edition)
	}
	return parts
}

func describeRatings(r Record) string {
	ratings := r.Map("ratings")
	if len(ratings) == 0 {
		return ""
	}

	sites := make([]string, 0, len(ratings))
	for site := range ratings {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	out := make([]string, 0, len(sites))
	for _, site := range sites {
		rating := ratings.Map(site)
		if rating == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s rated %s with %s votes",
			site, rating.Text("value"), rating.Text("votes")))
	}
	return strings.Join(out, ", ")
}

// Text returns the field as text, or "" when absent or null.
func (r Record) Text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the field as an integer.
func (r Record) Int(key string) (int64, bool) {
	switch t := r[key].(type) {
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

// Map returns a nested object field, or nil.
func (r Record) Map(key string) Record {
	if r == nil {
		return nil
	}
	m, _ := r[key].(map[string]any)
	return m
}

// Strings returns a string array field.
func (r Record) Strings(key string) []string {
	list, _ := r[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
