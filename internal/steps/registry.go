package steps

import (
	"path/filepath"
	"strings"

	"scribe/internal/classify"
	"scribe/internal/runstate"
)

// Step names, in pipeline order.
const (
	ExtractFrames = "extract_frames"
	Convert       = "convert"
	Describe      = "describe"
	Render        = "render"
)

// Step is one named pipeline stage with its applicability rule.
type Step struct {
	Name    string
	PerItem bool
	applies func(*Registry, *runstate.ItemRecord) bool
}

// Registry is the static, ordered list of pipeline steps. Step order and
// membership are fixed; only the canonical image format is configuration.
type Registry struct {
	canonicalExts map[string]struct{}
	steps         []Step
}

// NewRegistry builds the step registry for a canonical image format such as
// "png" or "jpeg".
func NewRegistry(canonicalFormat string) *Registry {
	r := &Registry{canonicalExts: canonicalExtensions(canonicalFormat)}
	r.steps = []Step{
		{Name: ExtractFrames, PerItem: true, applies: appliesExtract},
		{Name: Convert, PerItem: true, applies: appliesConvert},
		{Name: Describe, PerItem: true, applies: appliesDescribe},
		{Name: Render, PerItem: false},
	}
	return r
}

func canonicalExtensions(format string) map[string]struct{} {
	format = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
	exts := map[string]struct{}{"." + format: {}}
	switch format {
	case "jpeg":
		exts[".jpg"] = struct{}{}
	case "jpg":
		exts[".jpeg"] = struct{}{}
	}
	return exts
}

// Names returns every step name in pipeline order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.steps))
	for _, step := range r.steps {
		names = append(names, step.Name)
	}
	return names
}

// PerItem returns the per-item step names in pipeline order.
func (r *Registry) PerItem() []string {
	names := make([]string, 0, len(r.steps))
	for _, step := range r.steps {
		if step.PerItem {
			names = append(names, step.Name)
		}
	}
	return names
}

// NextApplicableStep returns the first per-item step, in registry order,
// whose prerequisites are satisfied and whose own status is not completed or
// skipped. It returns false when the item has no further applicable work.
// The function is pure: it inspects only the item record.
func (r *Registry) NextApplicableStep(item *runstate.ItemRecord) (string, bool) {
	if item == nil {
		return "", false
	}
	for _, step := range r.steps {
		if !step.PerItem {
			continue
		}
		if !step.applies(r, item) {
			continue
		}
		switch item.StepStatus(step.Name) {
		case runstate.StepCompleted, runstate.StepSkipped:
			continue
		default:
			return step.Name, true
		}
	}
	return "", false
}

// FinalStatus derives the terminal status for an item with no further
// applicable work: completed when any per-item step completed, skipped
// otherwise (unsupported files, videos that yielded no frames).
func (r *Registry) FinalStatus(item *runstate.ItemRecord) runstate.ItemStatus {
	for _, step := range r.steps {
		if step.PerItem && item.StepStatus(step.Name) == runstate.StepCompleted {
			return runstate.ItemCompleted
		}
	}
	return runstate.ItemSkipped
}

// IsCanonical reports whether a path already carries the canonical format.
func (r *Registry) IsCanonical(path string) bool {
	_, ok := r.canonicalExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// currentImage returns the describable image path for an item, or "" when
// no step has resolved one yet.
func currentImage(item *runstate.ItemRecord) string {
	if item.ResolvedPath != "" {
		return item.ResolvedPath
	}
	if classify.Kind(item.Kind) == classify.KindImage {
		return item.SourcePath
	}
	return ""
}

func appliesExtract(_ *Registry, item *runstate.ItemRecord) bool {
	return classify.Kind(item.Kind) == classify.KindVideo
}

func appliesConvert(r *Registry, item *runstate.ItemRecord) bool {
	image := currentImage(item)
	return image != "" && !r.IsCanonical(image)
}

func appliesDescribe(r *Registry, item *runstate.ItemRecord) bool {
	image := currentImage(item)
	return image != "" && r.IsCanonical(image)
}
